package jwtx

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrExpired       = errors.New("jwtx: token expired")
	ErrMissingClaims = errors.New("jwtx: missing required claims")

	ErrWeakSecret = errors.New("jwtx: signing secret too short")
	ErrSameSecret = errors.New("jwtx: access and refresh secrets must differ")
)

// Kind classifies why a token failed verification. Callers react
// differently to each kind, so it is exposed rather than folded into a
// single "invalid token" error.
type Kind int

const (
	// KindMalformed covers structural damage, bad signatures, wrong
	// algorithm, wrong issuer and tokens of the wrong type.
	KindMalformed Kind = iota + 1

	// KindExpired means the signature was valid but exp has passed.
	KindExpired

	// KindMissingClaims means the token verified but lacks sid or jti.
	KindMissingClaims
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindMissingClaims:
		return "missing_claims"
	default:
		return "unknown"
	}
}

// VerifyError is the error half of every verification result.
type VerifyError struct {
	Kind Kind
	Err  error
}

func newVerifyError(kind Kind, cause error) *VerifyError {
	var sentinel error
	switch kind {
	case KindExpired:
		sentinel = ErrExpired
	case KindMissingClaims:
		sentinel = ErrMissingClaims
	default:
		sentinel = ErrMalformed
	}

	if cause == nil {
		return &VerifyError{Kind: kind, Err: sentinel}
	}
	return &VerifyError{Kind: kind, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

func (e *VerifyError) Error() string { return e.Err.Error() }
func (e *VerifyError) Unwrap() error { return e.Err }

// KindOf extracts the verification kind from err, or 0 if err is not a
// verification failure.
func KindOf(err error) Kind {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}
