package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

var (
	ErrBootstrapAlready        = errors.New("credential store already has users")
	ErrBootstrapFailedToCreate = errors.New("failed to create seed user")
)

// SeedUser describes the first account created on an empty credential store.
type SeedUser struct {
	Username      string
	Password      string // Generated and logged once when empty
	PreferredName string
	Roles         []string
}

type BootstrapService struct {
	Users  store.Users
	Hasher *cryptox.PasswordHasher
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Users.IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// EnsureSeedUser creates req on an empty store. It returns the created user
// and the password that was used, which is only interesting when it was
// generated.
func (s *BootstrapService) EnsureSeedUser(ctx context.Context, req SeedUser) (domain.User, string, error) {
	l := slogx.FromContext(ctx)

	// 1. Check if already bootstrapped
	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return domain.User{}, "", err
	}
	if bootstrapped {
		return domain.User{}, "", ErrBootstrapAlready
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return domain.User{}, "", ErrInvalidInput
	}

	// 2. Pick a password
	password := req.Password
	if password == "" {
		password, err = cryptox.GeneratePassword()
		if err != nil {
			l.Error("failed to generate seed password", slog.Any("err", err))
			return domain.User{}, "", ErrBootstrapFailedToCreate
		}
	}

	// 3. Hash password
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Error("failed to hash seed password", slog.Any("err", err))
		return domain.User{}, "", ErrBootstrapFailedToCreate
	}

	// 4. Create the user
	user := domain.User{
		ID:            idx.New().String(),
		Username:      req.Username,
		PreferredName: req.PreferredName,
		PasswordHash:  hash,
		Roles:         req.Roles,
		Active:        true,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, "", ErrBootstrapAlready
		}
		l.Error("failed to create seed user", slog.String("user_id", user.ID), slog.Any("err", err))
		return domain.User{}, "", ErrBootstrapFailedToCreate
	}

	l.Info("seeded credential store", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return user, password, nil
}
