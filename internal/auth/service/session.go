package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// DefaultSessionTTL is the hard cap on a session's lifetime.
const DefaultSessionTTL = 24 * time.Hour

// RotationOutcome is the terminal state of a single rotation attempt.
type RotationOutcome int

const (
	// Rotated means the presented jti is now deny-listed and a fresh pair
	// bound to the same session was minted.
	Rotated RotationOutcome = iota + 1

	// ReuseDetected means the jti had already been redeemed, or the token
	// and session disagree about who owns the session.
	ReuseDetected

	// SessionNotFound means the session is gone, expired or was removed
	// mid-rotation.
	SessionNotFound

	// Rejected means the claims lacked a session id or jti.
	Rejected
)

func (o RotationOutcome) String() string {
	switch o {
	case Rotated:
		return "rotated"
	case ReuseDetected:
		return "reuse_detected"
	case SessionNotFound:
		return "session_not_found"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RotationResult is what Rotate reports. Tokens is only set for Rotated.
// UserID and SessionID always come from the verified claims.
type RotationResult struct {
	Outcome   RotationOutcome
	Tokens    domain.TokenPair
	UserID    string
	SessionID string
}

// SessionManager owns the session lifecycle and the deny-list protocol.
// It keeps no state of its own, all of it lives in the session store.
type SessionManager struct {
	Sessions store.Sessions
	Codec    *jwtx.Codec
	TTL      time.Duration
	Now      func() time.Time
}

// NewSessionManager builds a manager with a hard cap of ttl, falling back
// to DefaultSessionTTL.
func NewSessionManager(sessions store.Sessions, codec *jwtx.Codec, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		Sessions: sessions,
		Codec:    codec,
		TTL:      ttl,
		Now:      time.Now,
	}
}

func (m *SessionManager) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

// Create persists a new session for id with an empty deny list.
func (m *SessionManager) Create(ctx context.Context, id domain.Identity) (domain.Session, error) {
	now := m.now().Truncate(time.Millisecond)

	sess := domain.Session{
		ID:        idx.NewAt(now).String(),
		UserID:    id.UserID,
		Username:  id.Username,
		ExpireAt:  now.Add(m.TTL),
		DenyList:  []string{},
		CreatedAt: now,
	}

	if err := m.Sessions.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// IssueTokens mints an access/refresh pair for id bound to sessionID.
func (m *SessionManager) IssueTokens(id domain.Identity, sessionID string) (domain.TokenPair, error) {
	p := jwtx.Principal{UserID: id.UserID, Username: id.Username, Roles: id.Roles}

	access, err := m.Codec.IssueAccess(p, sessionID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, jti, err := m.Codec.IssueRefresh(p, sessionID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshJTI:       jti,
		SessionID:        sessionID,
		AccessExpiresIn:  m.Codec.AccessTTL(),
		RefreshExpiresIn: m.Codec.RefreshTTL(),
	}, nil
}

// Rotate redeems the refresh token described by claims. The returned error
// is only ever an infrastructure failure, every protocol outcome is carried
// in the result.
func (m *SessionManager) Rotate(ctx context.Context, claims jwtx.RefreshClaims) (RotationResult, error) {
	l := slogx.FromContext(ctx).With(
		slog.String("user_id", claims.UserID()),
		slog.String("session_id", claims.SID),
	)
	res := RotationResult{UserID: claims.UserID(), SessionID: claims.SID}

	// 1. Structural check
	if claims.SID == "" || claims.JTI() == "" || claims.UserID() == "" {
		res.Outcome = Rejected
		return res, nil
	}

	// 2. Lookup, the store hides expired sessions and we double check the
	// hard cap against our own clock
	sess, err := m.Sessions.GetSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			res.Outcome = SessionNotFound
			return res, nil
		}
		return RotationResult{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Expired(m.now()) {
		res.Outcome = SessionNotFound
		return res, nil
	}
	if sess.UserID != claims.UserID() {
		l.Warn("refresh token subject does not own its session", slog.String("session_owner", sess.UserID))
		res.Outcome = ReuseDetected
		return res, nil
	}

	// 3. The atomic append decides the race
	appended, err := m.Sessions.AppendDenyListEntryIfAbsent(ctx, sess.ID, claims.JTI())
	if err != nil {
		return RotationResult{}, fmt.Errorf("append deny list: %w", err)
	}

	switch appended {
	case store.Appended:
	case store.AlreadyPresent:
		l.Warn("refresh token reuse detected", slog.String("jti", claims.JTI()))
		res.Outcome = ReuseDetected
		return res, nil
	case store.SessionMissing:
		res.Outcome = SessionNotFound
		return res, nil
	default:
		return RotationResult{}, fmt.Errorf("append deny list: unexpected result %v", appended)
	}

	// 4. Mint the successor pair on the same session
	tokens, err := m.IssueTokens(domain.Identity{
		UserID:   sess.UserID,
		Username: sess.Username,
		Roles:    claims.Roles,
	}, sess.ID)
	if err != nil {
		return RotationResult{}, fmt.Errorf("issue tokens: %w", err)
	}

	res.Outcome = Rotated
	res.Tokens = tokens
	return res, nil
}

// InvalidateAllForUser deletes every session of userID and reports how many
// went away.
func (m *SessionManager) InvalidateAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := m.Sessions.DeleteSessionsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return n, nil
}

// Delete removes one session. It returns store.ErrNotFound when there was
// nothing to remove.
func (m *SessionManager) Delete(ctx context.Context, sessionID string) error {
	return m.Sessions.DeleteSession(ctx, sessionID)
}
