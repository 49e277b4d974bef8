package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var (
	accessSecret  = []byte("access-secret-access-secret-0123")
	refreshSecret = []byte("refresh-secret-refresh-secret-01")
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newCodec(t *testing.T, clk *clock) *jwtx.Codec {
	t.Helper()
	c, err := jwtx.NewCodec(jwtx.CodecConfig{
		Issuer:        "tabauth-test",
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Now:           clk.Now,
	})
	require.NoError(t, err)
	return c
}

var alice = jwtx.Principal{UserID: "u-alice", Username: "alice", Roles: []string{"staff"}}

func TestNewCodec(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := jwtx.NewCodec(jwtx.CodecConfig{
			AccessSecret:  []byte("short"),
			RefreshSecret: refreshSecret,
		})
		require.ErrorIs(t, err, jwtx.ErrWeakSecret)
	})

	t.Run("rejects shared secret", func(t *testing.T) {
		_, err := jwtx.NewCodec(jwtx.CodecConfig{
			AccessSecret:  accessSecret,
			RefreshSecret: accessSecret,
		})
		require.ErrorIs(t, err, jwtx.ErrSameSecret)
	})

	t.Run("applies default ttls", func(t *testing.T) {
		c, err := jwtx.NewCodec(jwtx.CodecConfig{
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
		})
		require.NoError(t, err)
		require.Equal(t, 60*time.Second, c.AccessTTL())
		require.Equal(t, 30*time.Minute, c.RefreshTTL())
	})
}

func TestIssueAndVerifyRefresh(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := newCodec(t, clk)

	token, jti, err := c.IssueRefresh(alice, "s-1")
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := c.VerifyRefresh(token)
	require.NoError(t, err)
	require.Equal(t, "u-alice", claims.UserID())
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, []string{"staff"}, claims.Roles)
	require.Equal(t, "s-1", claims.SID)
	require.Equal(t, jti, claims.JTI())
	require.Equal(t, "tabauth-test", claims.Issuer)
	require.True(t, clk.t.Add(30*time.Minute).Equal(claims.ExpiresAt.Time))
}

func TestIssueRefreshUsesFreshJTI(t *testing.T) {
	c := newCodec(t, &clock{t: time.Now()})

	seen := make(map[string]bool)
	for range 50 {
		_, jti, err := c.IssueRefresh(alice, "s-1")
		require.NoError(t, err)
		require.False(t, seen[jti], "jti reused: %s", jti)
		seen[jti] = true
	}
}

func TestVerifyRefreshFailures(t *testing.T) {
	clk := &clock{t: time.Now().UTC()}
	c := newCodec(t, clk)

	valid, _, err := c.IssueRefresh(alice, "s-1")
	require.NoError(t, err)
	access, err := c.IssueAccess(alice, "s-1")
	require.NoError(t, err)

	other, err := jwtx.NewCodec(jwtx.CodecConfig{
		Issuer:        "someone-else",
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Now:           clk.Now,
	})
	require.NoError(t, err)
	foreign, _, err := other.IssueRefresh(alice, "s-1")
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name  string
		token string
		kind  jwtx.Kind
		is    error
	}{
		{"empty", "", jwtx.KindMalformed, jwtx.ErrMalformed},
		{"garbage", "not-a-jwt", jwtx.KindMalformed, jwtx.ErrMalformed},
		{"bad signature", tampered, jwtx.KindMalformed, jwtx.ErrMalformed},
		{"access token as refresh", access, jwtx.KindMalformed, jwtx.ErrMalformed},
		{"wrong issuer", foreign, jwtx.KindMalformed, jwtx.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.VerifyRefresh(tt.token)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.is)
			require.Equal(t, tt.kind, jwtx.KindOf(err))
		})
	}
}

func TestVerifyRefreshExpired(t *testing.T) {
	clk := &clock{t: time.Now().UTC()}
	c := newCodec(t, clk)

	token, _, err := c.IssueRefresh(alice, "s-1")
	require.NoError(t, err)

	clk.t = clk.t.Add(31 * time.Minute)

	_, err = c.VerifyRefresh(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
	require.Equal(t, jwtx.KindExpired, jwtx.KindOf(err))
}

func TestVerifyRefreshMissingSession(t *testing.T) {
	c := newCodec(t, &clock{t: time.Now().UTC()})

	token, jti, err := c.IssueRefresh(alice, "")
	require.NoError(t, err)

	claims, err := c.VerifyRefresh(token)
	require.ErrorIs(t, err, jwtx.ErrMissingClaims)
	require.Equal(t, jwtx.KindMissingClaims, jwtx.KindOf(err))
	require.Equal(t, jti, claims.JTI(), "claims are returned alongside missing-claims errors")
}

func TestVerifyAccess(t *testing.T) {
	clk := &clock{t: time.Now().UTC()}
	c := newCodec(t, clk)

	token, err := c.IssueAccess(alice, "s-1")
	require.NoError(t, err)

	claims, err := c.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, alice, claims.Principal())
	require.True(t, claims.HasRole("staff"))
	require.Empty(t, claims.ID)

	t.Run("refresh token as access", func(t *testing.T) {
		refresh, _, err := c.IssueRefresh(alice, "s-1")
		require.NoError(t, err)
		_, err = c.VerifyAccess(refresh)
		require.Equal(t, jwtx.KindMalformed, jwtx.KindOf(err))
	})

	t.Run("expires after sixty seconds", func(t *testing.T) {
		clk.t = clk.t.Add(61 * time.Second)
		_, err := c.VerifyAccess(token)
		require.Equal(t, jwtx.KindExpired, jwtx.KindOf(err))
	})
}
