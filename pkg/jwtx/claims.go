package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token TTL constants for the session protocol.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Access tokens are never individually revocable, the short TTL is
	// the only revocation mechanism.
	DefaultAccessTokenTTL = 60 * time.Second

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 30 * time.Minute
)

// Principal is the identity a token is minted for.
type Principal struct {
	UserID   string
	Username string
	Roles    []string
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims

	// Session ID the token is bound to
	SID string `json:"sid,omitempty"`

	// Username for the authenticated user
	Username string `json:"username,omitempty"`

	// Roles propagated to downstream services, "admin", "staff"
	Roles []string `json:"roles,omitempty"`
}

// UserID returns the subject of the token.
func (c AccessClaims) UserID() string { return c.Subject }

// Principal rebuilds the identity the token was minted for.
func (c AccessClaims) Principal() Principal {
	return Principal{
		UserID:   c.Subject,
		Username: c.Username,
		Roles:    slices.Clone(c.Roles),
	}
}

// HasRole reports whether the claims carry the given role.
func (c AccessClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// RefreshClaims are access claims plus a unique "jti" that is deny-listed
// once the token has been redeemed.
type RefreshClaims struct {
	AccessClaims
}

// JTI returns the unique token identifier.
func (c RefreshClaims) JTI() string { return c.ID }

func newAccessClaims(p Principal, sid, issuer string, ttl time.Duration, now time.Time) AccessClaims {
	return AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SID:      sid,
		Username: p.Username,
		Roles:    slices.Clone(p.Roles),
	}
}

// NewJTI returns a fresh random identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}
