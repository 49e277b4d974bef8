package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, mongo)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Sessions() Sessions

	// ApplyMigrations brings the schema (tables or indexes) up to date.
	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Users is the credential store. Only the login path reads it.
type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// SetUserActive flips the active flag and bumps updated_at.
	SetUserActive(ctx context.Context, userID string, active bool) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

// AppendResult is the outcome of AppendDenyListEntryIfAbsent.
type AppendResult int

const (
	// Appended means the jti was not present and has now been recorded.
	Appended AppendResult = iota + 1

	// AlreadyPresent means the jti was recorded by an earlier call.
	AlreadyPresent

	// SessionMissing means the session does not exist or has expired.
	SessionMissing
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case AlreadyPresent:
		return "already_present"
	case SessionMissing:
		return "session_missing"
	default:
		return "unknown"
	}
}

// Sessions persists session records. It deliberately offers no generic
// update: the deny list only changes through AppendDenyListEntryIfAbsent.
type Sessions interface {
	// CreateSession stores a new session (id is provided by app via ULID).
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSession returns the session with its deny list, or ErrNotFound if
	// it does not exist or its ExpireAt has passed.
	GetSession(ctx context.Context, id string) (domain.Session, error)

	// AppendDenyListEntryIfAbsent records jti against the session as a
	// single atomic conditional write. Two concurrent calls with the same
	// arguments never both report Appended.
	AppendDenyListEntryIfAbsent(ctx context.Context, sessionID, jti string) (AppendResult, error)

	// DeleteSession removes one session, ErrNotFound if it is absent.
	DeleteSession(ctx context.Context, id string) error

	// DeleteSessionsByUser removes every session of a user and returns how
	// many were removed.
	DeleteSessionsByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredSessions is housekeeping for the hard cap.
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
