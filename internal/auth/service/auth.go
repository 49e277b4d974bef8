package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// Recorder receives protocol outcomes. The metrics package implements it.
type Recorder interface {
	LoginAttempt(outcome string)
	RefreshAttempt(outcome string)
	Logout(outcome string)
	SessionsInvalidated(n int64)
	SessionsPurged(n int64)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string)       {}
func (nopRecorder) RefreshAttempt(string)     {}
func (nopRecorder) Logout(string)             {}
func (nopRecorder) SessionsInvalidated(int64) {}
func (nopRecorder) SessionsPurged(int64)      {}

// Outcome labels shared by the recorder and logs.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid_request"
	OutcomeUnknownUser   = "user_not_found"
	OutcomeBadCredential = "invalid_credentials"
	OutcomeInactive      = "inactive"
	OutcomeMFARequired   = "mfa_required"
	OutcomeMissingToken  = "missing_token"
	OutcomeBadToken      = "invalid_token"
	OutcomeReuse         = "reuse_detected"
	OutcomeNoSession     = "session_not_found"
	OutcomeRejected      = "rejected"
	OutcomeError         = "error"
	OutcomeNoop          = "noop"
)

type LoginRequest struct {
	Username string
	Password string
	OTP      string
}

type LoginResult struct {
	Tokens  domain.TokenPair
	Session domain.Session
	User    domain.UserProfile
}

type RefreshResult struct {
	Tokens domain.TokenPair
}

// LogoutOutcome describes what logout actually removed. Clients never see it.
type LogoutOutcome int

const (
	LogoutDeleted LogoutOutcome = iota + 1
	LogoutNoSession
	LogoutNoToken
	LogoutInvalidToken
)

func (o LogoutOutcome) String() string {
	switch o {
	case LogoutDeleted:
		return "deleted"
	case LogoutNoSession:
		return "session_not_found"
	case LogoutNoToken:
		return "missing_token"
	case LogoutInvalidToken:
		return "invalid_token"
	default:
		return "unknown"
	}
}

// AuthService composes credential checks, session lifecycle and token
// rotation into the three client-facing operations.
type AuthService struct {
	Credentials *CredentialVerifier
	Sessions    *SessionManager
	Codec       *jwtx.Codec
	Metrics     Recorder
}

func (s *AuthService) recorder() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

// Login verifies the credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	l := slogx.FromContext(ctx)
	rec := s.recorder()

	// 1. Validate input
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		rec.LoginAttempt(OutcomeInvalid)
		return nil, ErrInvalidInput
	}

	// 2. Verify credentials
	user, err := s.Credentials.Verify(ctx, req.Username, req.Password, strings.TrimSpace(req.OTP))
	if err != nil {
		rec.LoginAttempt(loginOutcome(err))
		if isProtocolError(err) {
			return nil, err
		}
		l.Error("failed to verify credentials", slog.Any("err", err))
		return nil, err
	}
	l = l.With(slog.String("user_id", user.ID))

	// 3. Open the session
	identity := user.Identity()
	sess, err := s.Sessions.Create(ctx, identity)
	if err != nil {
		rec.LoginAttempt(OutcomeError)
		l.Error("failed to create session", slog.Any("err", err))
		return nil, err
	}

	// 4. Issue the first pair
	tokens, err := s.Sessions.IssueTokens(identity, sess.ID)
	if err != nil {
		rec.LoginAttempt(OutcomeError)
		l.Error("failed to issue tokens", slog.String("session_id", sess.ID), slog.Any("err", err))
		return nil, err
	}

	rec.LoginAttempt(OutcomeSuccess)
	l.Info("user logged in", slog.String("session_id", sess.ID))
	return &LoginResult{
		Tokens:  tokens,
		Session: sess,
		User:    user.Profile(),
	}, nil
}

// Refresh rotates the refresh token found in the cookie. claimedSessionID is
// whatever the client says its session is and is only ever used to clean up
// after a failure that cannot be attributed through a verified token.
func (s *AuthService) Refresh(ctx context.Context, cookieToken, claimedSessionID string) (*RefreshResult, error) {
	l := slogx.FromContext(ctx)
	rec := s.recorder()

	// 1. No token at all
	if cookieToken == "" {
		s.dropClaimedSession(ctx, claimedSessionID)
		rec.RefreshAttempt(OutcomeMissingToken)
		return nil, ErrUnauthorized
	}

	// 2. Verify, a token missing sid or jti still reaches Rotate and is
	// rejected there without touching any session
	claims, err := s.Codec.VerifyRefresh(cookieToken)
	if err != nil && jwtx.KindOf(err) != jwtx.KindMissingClaims {
		l.Debug("refresh token failed verification", slog.String("kind", jwtx.KindOf(err).String()))
		s.dropClaimedSession(ctx, claimedSessionID)
		rec.RefreshAttempt(OutcomeBadToken)
		return nil, ErrUnauthorized
	}

	// 3. Rotate
	res, err := s.Sessions.Rotate(ctx, claims)
	if err != nil {
		rec.RefreshAttempt(OutcomeError)
		l.Error("failed to rotate refresh token", slog.String("session_id", claims.SID), slog.Any("err", err))
		return nil, err
	}

	switch res.Outcome {
	case Rotated:
		rec.RefreshAttempt(OutcomeSuccess)
		return &RefreshResult{Tokens: res.Tokens}, nil

	case ReuseDetected:
		// 4. Replay, every session of the user goes
		n, err := s.Sessions.InvalidateAllForUser(ctx, res.UserID)
		if err != nil {
			rec.RefreshAttempt(OutcomeError)
			l.Error("failed to invalidate sessions after reuse",
				slog.String("user_id", res.UserID),
				slog.Any("err", err),
			)
			return nil, err
		}

		// A mismatched token can point at a session owned by someone else
		if err := s.Sessions.Delete(ctx, res.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			l.Error("failed to delete implicated session", slog.String("session_id", res.SessionID), slog.Any("err", err))
		} else if err == nil {
			n++
		}

		rec.RefreshAttempt(OutcomeReuse)
		rec.SessionsInvalidated(n)
		l.Warn("refresh token reuse, all sessions invalidated",
			slog.String("user_id", res.UserID),
			slog.String("session_id", res.SessionID),
			slog.Int64("sessions_invalidated", n),
		)
		return nil, ErrReplayDetected

	case SessionNotFound:
		rec.RefreshAttempt(OutcomeNoSession)
		return nil, ErrUnauthorized

	case Rejected:
		rec.RefreshAttempt(OutcomeRejected)
		return nil, ErrUnauthorized

	default:
		rec.RefreshAttempt(OutcomeError)
		return nil, fmt.Errorf("unexpected rotation outcome %v", res.Outcome)
	}
}

// Logout deletes the session named by a verified refresh token. It never
// fails toward the caller, the outcome is informational.
func (s *AuthService) Logout(ctx context.Context, cookieToken, claimedSessionID string) LogoutOutcome {
	l := slogx.FromContext(ctx)
	rec := s.recorder()

	outcome := s.logout(ctx, cookieToken)
	if outcome != LogoutDeleted && claimedSessionID != "" {
		l.Debug("logout ignored unverified session id", slog.String("claimed_session_id", claimedSessionID))
	}

	rec.Logout(outcome.String())
	return outcome
}

func (s *AuthService) logout(ctx context.Context, cookieToken string) LogoutOutcome {
	l := slogx.FromContext(ctx)

	if cookieToken == "" {
		return LogoutNoToken
	}

	claims, err := s.Codec.VerifyRefresh(cookieToken)
	if err != nil || claims.SID == "" {
		return LogoutInvalidToken
	}

	if err := s.Sessions.Delete(ctx, claims.SID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.Error("failed to delete session on logout", slog.String("session_id", claims.SID), slog.Any("err", err))
		}
		return LogoutNoSession
	}

	l.Info("user logged out", slog.String("user_id", claims.UserID()), slog.String("session_id", claims.SID))
	return LogoutDeleted
}

// dropClaimedSession deletes the session the client claims to own. Failures
// are logged and otherwise ignored.
func (s *AuthService) dropClaimedSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if _, err := idx.Parse(sessionID); err != nil {
		return
	}

	err := s.Sessions.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Error("failed to delete claimed session",
			slog.String("session_id", sessionID),
			slog.Any("err", err),
		)
	}
}

func isProtocolError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrUserInactive) ||
		errors.Is(err, ErrMFARequired)
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return OutcomeUnknownUser
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeBadCredential
	case errors.Is(err, ErrUserInactive):
		return OutcomeInactive
	case errors.Is(err, ErrMFARequired):
		return OutcomeMFARequired
	default:
		return OutcomeError
	}
}
