package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestDeleteSessionRemovesDenyList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	sess := storetest.NewSession("u-1", time.Hour)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))
	_, err := s.Sessions().AppendDenyListEntryIfAbsent(ctx, sess.ID, "jti-1")
	require.NoError(t, err)

	require.NoError(t, s.Sessions().DeleteSession(ctx, sess.ID))

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_deny_list WHERE session_id = ?`, sess.ID).Scan(&rows))
	require.Zero(t, rows)
}

func TestSessionTimestampsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	sess := storetest.NewSession("u-1", 24*time.Hour)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	got, err := s.Sessions().GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, sess.ExpireAt.Equal(got.ExpireAt))
	require.True(t, sess.CreatedAt.Equal(got.CreatedAt))
	require.Equal(t, time.UTC, got.ExpireAt.Location())
}
