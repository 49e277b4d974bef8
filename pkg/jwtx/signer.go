package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the smallest accepted HMAC secret, one SHA-256 block
// of output.
const MinSecretLength = 32

// Signer is our interface for anything that can sign and check JWTs for
// one token type.
type Signer interface {
	Alg() string
	KID() string
	Sign(jwt.Claims) (string, error)
	Keyfunc(*jwt.Token) (any, error)
}

// HS256Signer signs with a shared HMAC-SHA256 secret. The KID names the
// token type so an access token is never accepted where a refresh token
// is expected, even before the signature is checked.
type HS256Signer struct {
	kid    string
	secret []byte
}

// NewSignerHS256 creates a signer for the token type named by kid.
func NewSignerHS256(kid string, secret []byte) (*HS256Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: %s secret has %d bytes, need %d", ErrWeakSecret, kid, len(secret), MinSecretLength)
	}

	s := make([]byte, len(secret))
	copy(s, secret)
	return &HS256Signer{kid: kid, secret: s}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) KID() string { return s.kid }

// Sign turns claims into a signed compact JWT.
func (s *HS256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.secret)
}

// Keyfunc hands the secret to the parser once the header matches.
func (s *HS256Signer) Keyfunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid != s.kid {
		return nil, fmt.Errorf("jwtx: unexpected kid %q", kid)
	}
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("jwtx: unexpected signing method")
	}
	return s.secret, nil
}
