package jwtx

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessKID  = "access"
	refreshKID = "refresh"
)

// CodecConfig is everything the codec needs, injected at construction.
type CodecConfig struct {
	// Issuer stamped into iss and required on verification.
	Issuer string

	// AccessSecret and RefreshSecret must be distinct and at least
	// MinSecretLength bytes.
	AccessSecret  []byte
	RefreshSecret []byte

	// AccessTTL and RefreshTTL default to DefaultAccessTokenTTL and
	// DefaultRefreshTokenTTL when zero.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Leeway allows small clock skew when validating exp/nbf/iat.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Codec issues and verifies the access/refresh token pair. It has no side
// effects and is safe for concurrent use.
type Codec struct {
	issuer     string
	access     Signer
	refresh    Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, ErrSameSecret
	}

	access, err := NewSignerHS256(accessKID, cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := NewSignerHS256(refreshKID, cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	c := &Codec{
		issuer:     cfg.Issuer,
		access:     access,
		refresh:    refresh,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		leeway:     cfg.Leeway,
		now:        cfg.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTokenTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTokenTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs an access token for p bound to session sid.
func (c *Codec) IssueAccess(p Principal, sid string) (string, error) {
	claims := newAccessClaims(p, sid, c.issuer, c.accessTTL, c.now().UTC())
	token, err := c.access.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign access token: %w", err)
	}
	return token, nil
}

// IssueRefresh signs a refresh token for p bound to session sid with a
// fresh jti, and returns the jti so the caller can record it without
// parsing the token again.
func (c *Codec) IssueRefresh(p Principal, sid string) (token, jti string, err error) {
	claims := RefreshClaims{
		AccessClaims: newAccessClaims(p, sid, c.issuer, c.refreshTTL, c.now().UTC()),
	}
	claims.ID = NewJTI()

	token, err = c.refresh.Sign(claims)
	if err != nil {
		return "", "", fmt.Errorf("jwtx: sign refresh token: %w", err)
	}
	return token, claims.ID, nil
}

// VerifyAccess checks an access token. The error, when non-nil, is always
// a *VerifyError.
func (c *Codec) VerifyAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, c.access, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.Subject == "" || claims.SID == "" {
		return claims, newVerifyError(KindMissingClaims, nil)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token. The error, when non-nil, is always
// a *VerifyError. For KindMissingClaims the verified claims are returned
// alongside the error.
func (c *Codec) VerifyRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, c.refresh, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.Subject == "" || claims.SID == "" || claims.ID == "" {
		return claims, newVerifyError(KindMissingClaims, nil)
	}
	return claims, nil
}

func (c *Codec) parse(token string, s Signer, claims jwt.Claims) error {
	if token == "" {
		return newVerifyError(KindMalformed, errors.New("empty token"))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, s.Keyfunc)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return newVerifyError(KindExpired, err)
	default:
		return newVerifyError(KindMalformed, err)
	}
}
