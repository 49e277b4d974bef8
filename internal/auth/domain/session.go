package domain

import (
	"slices"
	"time"
)

// Session binds a user to a rotating refresh-token chain. It is the unit of
// invalidation and lives no longer than ExpireAt regardless of rotation.
type Session struct {
	ID        string
	UserID    string
	Username  string
	ExpireAt  time.Time // Hard cap, set once at creation
	DenyList  []string  // Redeemed refresh-token jtis, append-only
	CreatedAt time.Time
}

// Expired reports whether the hard cap has passed at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpireAt)
}

// Denied reports whether jti has already been redeemed.
func (s Session) Denied(jti string) bool {
	return slices.Contains(s.DenyList, jti)
}
