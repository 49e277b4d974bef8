package domain

import (
	"slices"
	"time"
)

type User struct {
	ID            string
	Username      string
	PreferredName string
	PasswordHash  string   // argon2 encoded
	Roles         []string // Propagated into tokens, never evaluated here
	Active        bool     // Inactive accounts cannot log in
	MFASecret     *string  // TOTP secret (nullable, base32 encoded)
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the verified who-is-this of a login, the only user data that
// travels into sessions and tokens.
type Identity struct {
	UserID   string
	Username string
	Roles    []string
}

// Identity returns the identity for u.
func (u User) Identity() Identity {
	return Identity{
		UserID:   u.ID,
		Username: u.Username,
		Roles:    slices.Clone(u.Roles),
	}
}

// MFAEnrolled reports whether the user must present a TOTP code.
func (u User) MFAEnrolled() bool {
	return u.MFASecret != nil && *u.MFASecret != ""
}

// UserProfile is the sanitized view of a user returned to clients. It never
// carries the password hash or MFA secret.
type UserProfile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	PreferredName string    `json:"preferredName,omitempty"`
	Roles         []string  `json:"roles"`
	Active        bool      `json:"active"`
	MFAEnabled    bool      `json:"mfaEnabled"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Profile strips internal fields from u.
func (u User) Profile() UserProfile {
	roles := slices.Clone(u.Roles)
	if roles == nil {
		roles = []string{}
	}
	return UserProfile{
		ID:            u.ID,
		Username:      u.Username,
		PreferredName: u.PreferredName,
		Roles:         roles,
		Active:        u.Active,
		MFAEnabled:    u.MFAEnrolled(),
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
