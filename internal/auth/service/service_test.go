package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const totpSecret = "JBSWY3DPEHPK3PXP"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	store  *sqlite.Store
	clock  *clock
	codec  *jwtx.Codec
	hasher *cryptox.PasswordHasher
	svc    *AuthService
	rec    *countingRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	clk := &clock{t: time.Now().UTC()}
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Issuer:        "tabauth-test",
		AccessSecret:  []byte("access-secret-access-secret-0123"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-01"),
		Now:           clk.Now,
	})
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher("pepper").WithParams(cryptox.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16,
	})

	manager := NewSessionManager(s.Sessions(), codec, DefaultSessionTTL)
	manager.Now = clk.Now

	rec := &countingRecorder{counts: map[string]int{}}
	return &harness{
		store:  s,
		clock:  clk,
		codec:  codec,
		hasher: hasher,
		rec:    rec,
		svc: &AuthService{
			Credentials: &CredentialVerifier{Users: s.Users(), Hasher: hasher},
			Sessions:    manager,
			Codec:       codec,
			Metrics:     rec,
		},
	}
}

func (h *harness) addUser(t *testing.T, username, password string, mutate ...func(*domain.User)) domain.User {
	t.Helper()

	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Roles:        []string{"staff"},
		Active:       true,
	}
	for _, fn := range mutate {
		fn(&u)
	}
	require.NoError(t, h.store.Users().CreateUser(context.Background(), u))
	return u
}

func (h *harness) login(t *testing.T, username, password string) *LoginResult {
	t.Helper()
	res, err := h.svc.Login(context.Background(), LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	return res
}

func (h *harness) sessionExists(t *testing.T, id string) bool {
	t.Helper()
	_, err := h.store.Sessions().GetSession(context.Background(), id)
	if err == nil {
		return true
	}
	require.ErrorIs(t, err, store.ErrNotFound)
	return false
}

type countingRecorder struct {
	mu          sync.Mutex
	counts      map[string]int
	invalidated int64
	purged      int64
}

func (r *countingRecorder) inc(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *countingRecorder) LoginAttempt(o string)   { r.inc("login:" + o) }
func (r *countingRecorder) RefreshAttempt(o string) { r.inc("refresh:" + o) }
func (r *countingRecorder) Logout(o string)         { r.inc("logout:" + o) }

func (r *countingRecorder) SessionsInvalidated(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated += n
}

func (r *countingRecorder) SessionsPurged(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged += n
}

func TestCredentialVerifier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.addUser(t, "alice", "correct horse")
	h.addUser(t, "dormant", "correct horse", func(u *domain.User) { u.Active = false })
	secret := totpSecret
	h.addUser(t, "mfa", "correct horse", func(u *domain.User) { u.MFASecret = &secret })

	v := h.svc.Credentials

	t.Run("valid credentials", func(t *testing.T) {
		u, err := v.Verify(ctx, "alice", "correct horse", "")
		require.NoError(t, err)
		require.Equal(t, alice.ID, u.ID)
		require.Equal(t, []string{"staff"}, u.Identity().Roles)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := v.Verify(ctx, "mallory", "correct horse", "")
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := v.Verify(ctx, "alice", "battery staple", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive account", func(t *testing.T) {
		_, err := v.Verify(ctx, "dormant", "correct horse", "")
		require.ErrorIs(t, err, ErrUserInactive)
	})

	t.Run("inactive account with wrong password", func(t *testing.T) {
		_, err := v.Verify(ctx, "dormant", "nope", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("mfa required", func(t *testing.T) {
		_, err := v.Verify(ctx, "mfa", "correct horse", "")
		require.ErrorIs(t, err, ErrMFARequired)
	})

	t.Run("mfa wrong code", func(t *testing.T) {
		_, err := v.Verify(ctx, "mfa", "correct horse", "000000x")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("mfa valid code", func(t *testing.T) {
		code, err := totp.GenerateCode(totpSecret, time.Now())
		require.NoError(t, err)

		u, err := v.Verify(ctx, "mfa", "correct horse", code)
		require.NoError(t, err)
		require.Equal(t, "mfa", u.Username)
	})
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.addUser(t, "alice", "correct horse", func(u *domain.User) { u.PreferredName = "Alice" })

	t.Run("issues tokens bound to a new session", func(t *testing.T) {
		res := h.login(t, "alice", "correct horse")

		require.NotEmpty(t, res.Tokens.AccessToken)
		require.NotEmpty(t, res.Tokens.RefreshToken)
		require.Equal(t, res.Session.ID, res.Tokens.SessionID)
		require.Equal(t, alice.ID, res.User.ID)
		require.Equal(t, "Alice", res.User.PreferredName)

		access, err := h.codec.VerifyAccess(res.Tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, alice.ID, access.UserID())
		require.Equal(t, res.Session.ID, access.SID)

		refresh, err := h.codec.VerifyRefresh(res.Tokens.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, res.Tokens.RefreshJTI, refresh.JTI())

		sess, err := h.store.Sessions().GetSession(ctx, res.Session.ID)
		require.NoError(t, err)
		require.Empty(t, sess.DenyList)
		require.Equal(t, alice.ID, sess.UserID)
		require.True(t, res.Session.ExpireAt.Equal(sess.ExpireAt))
		require.WithinDuration(t, h.clock.Now().Add(DefaultSessionTTL), sess.ExpireAt, time.Second)
	})

	t.Run("two logins give independent sessions", func(t *testing.T) {
		a := h.login(t, "alice", "correct horse")
		b := h.login(t, "alice", "correct horse")
		require.NotEqual(t, a.Session.ID, b.Session.ID)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := h.svc.Login(ctx, LoginRequest{Username: "  ", Password: "x"})
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = h.svc.Login(ctx, LoginRequest{Username: "alice"})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("bad credentials open no session", func(t *testing.T) {
		n, err := h.store.Sessions().DeleteSessionsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.NotZero(t, n)

		_, err = h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)

		n, err = h.store.Sessions().DeleteSessionsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	require.Equal(t, 1, h.rec.count("login:"+OutcomeBadCredential))
	require.Equal(t, 2, h.rec.count("login:"+OutcomeInvalid))
}

func TestRefresh_RotatesWithinSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")

	login := h.login(t, "alice", "correct horse")

	res, err := h.svc.Refresh(ctx, login.Tokens.RefreshToken, login.Session.ID)
	require.NoError(t, err)
	require.Equal(t, login.Session.ID, res.Tokens.SessionID)
	require.NotEqual(t, login.Tokens.RefreshJTI, res.Tokens.RefreshJTI)
	require.NotEqual(t, login.Tokens.RefreshToken, res.Tokens.RefreshToken)

	sess, err := h.store.Sessions().GetSession(ctx, login.Session.ID)
	require.NoError(t, err)
	require.Equal(t, []string{login.Tokens.RefreshJTI}, sess.DenyList)

	// The successor keeps rotating
	res2, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken, "")
	require.NoError(t, err)
	require.Equal(t, login.Session.ID, res2.Tokens.SessionID)

	sess, err = h.store.Sessions().GetSession(ctx, login.Session.ID)
	require.NoError(t, err)
	require.Equal(t, []string{login.Tokens.RefreshJTI, res.Tokens.RefreshJTI}, sess.DenyList)
}

func TestRefresh_ReuseInvalidatesEverySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")
	h.addUser(t, "bob", "hunter2")

	first := h.login(t, "alice", "correct horse")
	second := h.login(t, "alice", "correct horse")
	other := h.login(t, "bob", "hunter2")

	rotated, err := h.svc.Refresh(ctx, first.Tokens.RefreshToken, first.Session.ID)
	require.NoError(t, err)

	// Replaying the redeemed token
	_, err = h.svc.Refresh(ctx, first.Tokens.RefreshToken, first.Session.ID)
	require.ErrorIs(t, err, ErrReplayDetected)

	require.False(t, h.sessionExists(t, first.Session.ID))
	require.False(t, h.sessionExists(t, second.Session.ID))
	require.True(t, h.sessionExists(t, other.Session.ID), "other users are untouched")

	// The legitimate successor is dead too
	_, err = h.svc.Refresh(ctx, rotated.Tokens.RefreshToken, first.Session.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Equal(t, 1, h.rec.count("refresh:"+OutcomeReuse))
	require.Equal(t, int64(2), h.rec.invalidated)
}

func TestRefresh_SessionIndependence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")

	a := h.login(t, "alice", "correct horse")
	b := h.login(t, "alice", "correct horse")

	// Rotating A leaves B's token usable and its deny list empty
	_, err := h.svc.Refresh(ctx, a.Tokens.RefreshToken, a.Session.ID)
	require.NoError(t, err)

	sess, err := h.store.Sessions().GetSession(ctx, b.Session.ID)
	require.NoError(t, err)
	require.Empty(t, sess.DenyList)

	res, err := h.svc.Refresh(ctx, b.Tokens.RefreshToken, b.Session.ID)
	require.NoError(t, err)
	require.Equal(t, b.Session.ID, res.Tokens.SessionID)
}

func TestRefresh_ConcurrentDoubleRedeem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")
	login := h.login(t, "alice", "correct horse")

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		replay int
		other  []error
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Refresh(ctx, login.Tokens.RefreshToken, login.Session.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrReplayDetected):
				replay++
			case errors.Is(err, ErrUnauthorized):
				// The session was already wiped by a concurrent replay
				replay++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 1, ok, "exactly one refresh may win")
	require.Equal(t, workers-1, replay)
}

func TestRefresh_FailuresAreUniform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")

	t.Run("missing cookie deletes the claimed session", func(t *testing.T) {
		login := h.login(t, "alice", "correct horse")

		_, err := h.svc.Refresh(ctx, "", login.Session.ID)
		require.ErrorIs(t, err, ErrUnauthorized)
		require.False(t, h.sessionExists(t, login.Session.ID))
	})

	t.Run("garbage token deletes the claimed session", func(t *testing.T) {
		login := h.login(t, "alice", "correct horse")

		_, err := h.svc.Refresh(ctx, "not.a.jwt", login.Session.ID)
		require.ErrorIs(t, err, ErrUnauthorized)
		require.False(t, h.sessionExists(t, login.Session.ID))
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		login := h.login(t, "alice", "correct horse")

		_, err := h.svc.Refresh(ctx, login.Tokens.AccessToken, "")
		require.ErrorIs(t, err, ErrUnauthorized)
		require.True(t, h.sessionExists(t, login.Session.ID))
	})

	t.Run("expired token", func(t *testing.T) {
		login := h.login(t, "alice", "correct horse")
		h.clock.Advance(jwtx.DefaultRefreshTokenTTL + time.Minute)

		_, err := h.svc.Refresh(ctx, login.Tokens.RefreshToken, login.Session.ID)
		require.ErrorIs(t, err, ErrUnauthorized)
		require.False(t, h.sessionExists(t, login.Session.ID))
	})

	t.Run("unknown session id in claims", func(t *testing.T) {
		p := jwtx.Principal{UserID: "u-ghost", Username: "ghost"}
		token, _, err := h.codec.IssueRefresh(p, idx.New().String())
		require.NoError(t, err)

		_, err = h.svc.Refresh(ctx, token, "")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("claimed session id that is not an id is ignored", func(t *testing.T) {
		_, err := h.svc.Refresh(ctx, "", "'; DROP TABLE sessions; --")
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestRefresh_OwnerMismatchIsReuse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.addUser(t, "alice", "correct horse")
	h.addUser(t, "bob", "hunter2")

	victim := h.login(t, "bob", "hunter2")
	mine := h.login(t, "alice", "correct horse")

	// A validly signed token claiming bob's session for alice
	forged, _, err := h.codec.IssueRefresh(jwtx.Principal{UserID: alice.ID, Username: "alice"}, victim.Session.ID)
	require.NoError(t, err)

	_, err = h.svc.Refresh(ctx, forged, victim.Session.ID)
	require.ErrorIs(t, err, ErrReplayDetected)

	require.False(t, h.sessionExists(t, mine.Session.ID))
	require.False(t, h.sessionExists(t, victim.Session.ID))
}

func TestRefresh_HardCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")

	login := h.login(t, "alice", "correct horse")
	token := login.Tokens.RefreshToken

	// Keep rotating inside every refresh window until the day is up
	step := jwtx.DefaultRefreshTokenTTL - time.Minute
	var elapsed time.Duration
	for elapsed+step < DefaultSessionTTL {
		h.clock.Advance(step)
		elapsed += step

		res, err := h.svc.Refresh(ctx, token, login.Session.ID)
		require.NoError(t, err, "rotation at %s", elapsed)
		token = res.Tokens.RefreshToken
	}

	h.clock.Advance(DefaultSessionTTL - elapsed)
	_, err := h.svc.Refresh(ctx, token, login.Session.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, h.rec.count("refresh:"+OutcomeNoSession))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct horse")

	t.Run("deletes the verified session", func(t *testing.T) {
		login := h.login(t, "alice", "correct horse")

		require.Equal(t, LogoutDeleted, h.svc.Logout(ctx, login.Tokens.RefreshToken, login.Session.ID))
		require.False(t, h.sessionExists(t, login.Session.ID))

		// Repeating is harmless
		require.Equal(t, LogoutNoSession, h.svc.Logout(ctx, login.Tokens.RefreshToken, login.Session.ID))

		_, err := h.svc.Refresh(ctx, login.Tokens.RefreshToken, login.Session.ID)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unverified session ids are never deleted", func(t *testing.T) {
		victim := h.login(t, "alice", "correct horse")

		require.Equal(t, LogoutNoToken, h.svc.Logout(ctx, "", victim.Session.ID))
		require.Equal(t, LogoutInvalidToken, h.svc.Logout(ctx, "garbage", victim.Session.ID))
		require.True(t, h.sessionExists(t, victim.Session.ID))
	})

	t.Run("only the named session goes", func(t *testing.T) {
		a := h.login(t, "alice", "correct horse")
		b := h.login(t, "alice", "correct horse")

		require.Equal(t, LogoutDeleted, h.svc.Logout(ctx, a.Tokens.RefreshToken, ""))
		require.True(t, h.sessionExists(t, b.Session.ID))
	})
}

func TestRotate_Outcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.svc.Sessions

	t.Run("rejects claims without a session", func(t *testing.T) {
		res, err := m.Rotate(ctx, jwtx.RefreshClaims{})
		require.NoError(t, err)
		require.Equal(t, Rejected, res.Outcome)
		require.Equal(t, "rejected", res.Outcome.String())
	})

	t.Run("unknown session", func(t *testing.T) {
		token, _, err := h.codec.IssueRefresh(jwtx.Principal{UserID: "u-1"}, idx.New().String())
		require.NoError(t, err)
		claims, err := h.codec.VerifyRefresh(token)
		require.NoError(t, err)

		res, err := m.Rotate(ctx, claims)
		require.NoError(t, err)
		require.Equal(t, SessionNotFound, res.Outcome)
	})
}

func TestHousekeepingPurge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sessions := h.store.Sessions()

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, ttl := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
		require.NoError(t, sessions.CreateSession(ctx, domain.Session{
			ID:        idx.New().String(),
			UserID:    "u-1",
			Username:  "alice",
			ExpireAt:  now.Add(ttl),
			CreatedAt: now.Add(-time.Duration(i) * time.Second),
		}))
	}

	hk := NewHousekeepingService(sessions, nil, 0)
	hk.Metrics = h.rec
	require.Equal(t, DefaultHousekeepingInterval, hk.Interval)

	require.Equal(t, int64(2), hk.Purge(ctx))
	require.Equal(t, int64(0), hk.Purge(ctx))
	require.Equal(t, int64(2), h.rec.purged)

	n, err := sessions.DeleteSessionsByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "live session survives the purge")
}

func TestHousekeepingStartStop(t *testing.T) {
	h := newHarness(t)

	hk := NewHousekeepingService(h.store.Sessions(), nil, time.Hour)
	hk.Start()
	hk.Stop()
}

func TestEnsureSeedUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := &BootstrapService{Users: h.store.Users(), Hasher: h.hasher}

	bootstrapped, err := b.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, bootstrapped)

	_, _, err = b.EnsureSeedUser(ctx, SeedUser{Username: " "})
	require.ErrorIs(t, err, ErrInvalidInput)

	user, password, err := b.EnsureSeedUser(ctx, SeedUser{Username: "admin", Roles: []string{"admin"}})
	require.NoError(t, err)
	require.Len(t, password, 16)
	require.True(t, user.Active)

	// The generated password works for login
	res, err := h.svc.Login(ctx, LoginRequest{Username: "admin", Password: password})
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, res.User.Roles)

	_, _, err = b.EnsureSeedUser(ctx, SeedUser{Username: "other", Password: "x"})
	require.ErrorIs(t, err, ErrBootstrapAlready)
}
