// Package storetest is a conformance suite every store driver must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore) })
	t.Run("DenyList", func(t *testing.T) { testDenyList(t, newStore) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newStore) })
	t.Run("Invalidation", func(t *testing.T) { testInvalidation(t, newStore) })
}

func open(t *testing.T, newStore Factory) store.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewSession builds a live session for userID expiring after ttl.
func NewSession(userID string, ttl time.Duration) domain.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Session{
		ID:        idx.New().String(),
		UserID:    userID,
		Username:  "user-" + userID,
		ExpireAt:  now.Add(ttl),
		CreatedAt: now,
	}
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	users := s.Users()

	empty, err := users.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	secret := "JBSWY3DPEHPK3PXP"
	alice := domain.User{
		ID:           idx.New().String(),
		Username:     "alice",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		Roles:        []string{"staff", "admin"},
		Active:       true,
		MFASecret:    &secret,
	}
	require.NoError(t, users.CreateUser(ctx, alice))

	bob := domain.User{
		ID:           idx.New().String(),
		Username:     "bob",
		PasswordHash: "hash",
		Active:       false,
	}
	require.NoError(t, users.CreateUser(ctx, bob))

	t.Run("get by username", func(t *testing.T) {
		got, err := users.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice.ID, got.ID)
		require.Equal(t, alice.PasswordHash, got.PasswordHash)
		require.Equal(t, []string{"staff", "admin"}, got.Roles)
		require.True(t, got.Active)
		require.NotNil(t, got.MFASecret)
		require.Equal(t, secret, *got.MFASecret)
		require.False(t, got.CreatedAt.IsZero())
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := users.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		require.Equal(t, "bob", got.Username)
		require.False(t, got.Active)
		require.Nil(t, got.MFASecret)
		require.Empty(t, got.Roles)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := users.GetUserByUsername(ctx, "mallory")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = users.GetUserByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		dup := alice
		dup.ID = idx.New().String()
		require.ErrorIs(t, users.CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("set active", func(t *testing.T) {
		require.NoError(t, users.SetUserActive(ctx, bob.ID, true))
		got, err := users.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		require.True(t, got.Active)

		require.ErrorIs(t, users.SetUserActive(ctx, idx.New().String(), true), store.ErrNotFound)
	})

	empty, err = users.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func testSessions(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	sessions := s.Sessions()

	t.Run("create and get", func(t *testing.T) {
		sess := NewSession("u-1", time.Hour)
		require.NoError(t, sessions.CreateSession(ctx, sess))

		got, err := sessions.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, sess.ID, got.ID)
		require.Equal(t, "u-1", got.UserID)
		require.Equal(t, sess.Username, got.Username)
		require.True(t, sess.ExpireAt.Equal(got.ExpireAt))
		require.Empty(t, got.DenyList)
	})

	t.Run("duplicate id", func(t *testing.T) {
		sess := NewSession("u-1", time.Hour)
		require.NoError(t, sessions.CreateSession(ctx, sess))
		require.ErrorIs(t, sessions.CreateSession(ctx, sess), store.ErrAlreadyExists)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := sessions.GetSession(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired session is invisible", func(t *testing.T) {
		sess := NewSession("u-1", -time.Second)
		require.NoError(t, sessions.CreateSession(ctx, sess))

		_, err := sessions.GetSession(ctx, sess.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		sess := NewSession("u-1", time.Hour)
		require.NoError(t, sessions.CreateSession(ctx, sess))

		require.NoError(t, sessions.DeleteSession(ctx, sess.ID))
		_, err := sessions.GetSession(ctx, sess.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, sessions.DeleteSession(ctx, sess.ID), store.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		live := NewSession("u-2", time.Hour)
		dead := NewSession("u-2", -time.Minute)
		require.NoError(t, sessions.CreateSession(ctx, live))
		require.NoError(t, sessions.CreateSession(ctx, dead))

		// Drivers with their own TTL reaper may already have removed it.
		_, err := sessions.DeleteExpiredSessions(ctx)
		require.NoError(t, err)

		_, err = sessions.GetSession(ctx, live.ID)
		require.NoError(t, err)
		require.ErrorIs(t, sessions.DeleteSession(ctx, dead.ID), store.ErrNotFound)
	})
}

func testDenyList(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	sessions := s.Sessions()

	sess := NewSession("u-1", time.Hour)
	require.NoError(t, sessions.CreateSession(ctx, sess))

	res, err := sessions.AppendDenyListEntryIfAbsent(ctx, sess.ID, "jti-1")
	require.NoError(t, err)
	require.Equal(t, store.Appended, res)

	res, err = sessions.AppendDenyListEntryIfAbsent(ctx, sess.ID, "jti-1")
	require.NoError(t, err)
	require.Equal(t, store.AlreadyPresent, res)

	res, err = sessions.AppendDenyListEntryIfAbsent(ctx, sess.ID, "jti-2")
	require.NoError(t, err)
	require.Equal(t, store.Appended, res)

	got, err := sessions.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"jti-1", "jti-2"}, got.DenyList)
	require.True(t, got.Denied("jti-1"))
	require.False(t, got.Denied("jti-3"))

	t.Run("deny lists are per session", func(t *testing.T) {
		other := NewSession("u-1", time.Hour)
		require.NoError(t, sessions.CreateSession(ctx, other))

		res, err := sessions.AppendDenyListEntryIfAbsent(ctx, other.ID, "jti-1")
		require.NoError(t, err)
		require.Equal(t, store.Appended, res)
	})

	t.Run("unknown session", func(t *testing.T) {
		res, err := sessions.AppendDenyListEntryIfAbsent(ctx, idx.New().String(), "jti-1")
		require.NoError(t, err)
		require.Equal(t, store.SessionMissing, res)
	})

	t.Run("expired session", func(t *testing.T) {
		dead := NewSession("u-1", -time.Second)
		require.NoError(t, sessions.CreateSession(ctx, dead))

		res, err := sessions.AppendDenyListEntryIfAbsent(ctx, dead.ID, "jti-1")
		require.NoError(t, err)
		require.Equal(t, store.SessionMissing, res)
	})

	t.Run("deleted session", func(t *testing.T) {
		gone := NewSession("u-1", time.Hour)
		require.NoError(t, sessions.CreateSession(ctx, gone))
		require.NoError(t, sessions.DeleteSession(ctx, gone.ID))

		res, err := sessions.AppendDenyListEntryIfAbsent(ctx, gone.ID, "jti-1")
		require.NoError(t, err)
		require.Equal(t, store.SessionMissing, res)
	})
}

func testConcurrentAppend(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	sessions := s.Sessions()

	sess := NewSession("u-1", time.Hour)
	require.NoError(t, sessions.CreateSession(ctx, sess))

	const workers = 16
	results := make(chan store.AppendResult, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := sessions.AppendDenyListEntryIfAbsent(ctx, sess.ID, "contested")
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	counts := map[store.AppendResult]int{}
	for res := range results {
		counts[res]++
	}
	require.Equal(t, 1, counts[store.Appended], "exactly one caller may win the append")
	require.Equal(t, workers-1, counts[store.AlreadyPresent])

	got, err := sessions.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"contested"}, got.DenyList)
}

func testInvalidation(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	sessions := s.Sessions()

	a1 := NewSession("alice", time.Hour)
	a2 := NewSession("alice", time.Hour)
	b1 := NewSession("bob", time.Hour)
	for _, sess := range []domain.Session{a1, a2, b1} {
		require.NoError(t, sessions.CreateSession(ctx, sess))
	}
	_, err := sessions.AppendDenyListEntryIfAbsent(ctx, a1.ID, "jti-a1")
	require.NoError(t, err)

	n, err := sessions.DeleteSessionsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	for _, id := range []string{a1.ID, a2.ID} {
		_, err := sessions.GetSession(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	}

	_, err = sessions.GetSession(ctx, b1.ID)
	require.NoError(t, err, "other users are untouched")

	n, err = sessions.DeleteSessionsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}
