package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

// CredentialVerifier checks a username/password pair (and a TOTP code for
// enrolled users) against the credential store.
type CredentialVerifier struct {
	Users  store.Users
	Hasher *cryptox.PasswordHasher
}

// Verify returns the user on success, or one of ErrUserNotFound,
// ErrInvalidCredentials, ErrUserInactive and ErrMFARequired.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password, otpCode string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	// 1. Lookup the user, burning the same hashing time when absent
	user, err := v.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			v.Hasher.Burn(password)
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	// 2. Password before anything else so account state is never revealed
	// to someone who does not know the password
	if err := v.Hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrInvalidHash) {
			l.Error("stored password hash is unreadable", slog.String("user_id", user.ID), slog.Any("err", err))
		}
		return domain.User{}, ErrInvalidCredentials
	}

	// 3. Active flag
	if !user.Active {
		l.Info("login for inactive account", slog.String("user_id", user.ID))
		return domain.User{}, ErrUserInactive
	}

	// 4. Second factor when enrolled
	if user.MFAEnrolled() {
		if otpCode == "" {
			return domain.User{}, ErrMFARequired
		}
		if !totp.Validate(otpCode, *user.MFASecret) {
			l.Info("invalid totp code", slog.String("user_id", user.ID))
			return domain.User{}, ErrInvalidCredentials
		}
	}

	return user, nil
}
