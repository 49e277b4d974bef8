package authsdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshBuffer is how long before access token expiry a Session rotates.
const refreshBuffer = 10 * time.Second

// Session represents one logged in session. The access token is refreshed
// automatically before bearer calls; the refresh token stays in the jar.
type Session struct {
	client *SDKClient

	mu          sync.RWMutex
	accessToken string
	sessionID   string
	user        UserDocument
	expiresAt   time.Time
}

func newSession(client *SDKClient, accessToken, sessionID string, user UserDocument) *Session {
	return &Session{
		client:      client,
		accessToken: accessToken,
		sessionID:   sessionID,
		user:        user,
		expiresAt:   tokenExpiry(accessToken),
	}
}

// tokenExpiry reads exp without verifying the signature. The server is the
// only party that verifies; the client only needs to know when to rotate.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Refresh rotates the refresh cookie and replaces the access token.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	resp, err := s.client.Refresh(ctx, s.sessionID)
	if err != nil {
		return err
	}

	s.accessToken = resp.AccessToken
	s.expiresAt = tokenExpiry(resp.AccessToken)
	if resp.SessionID != "" {
		s.sessionID = resp.SessionID
	}
	return nil
}

// Logout ends the session on the server and forgets the access token.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Logout(ctx, s.sessionID); err != nil {
		return err
	}
	s.accessToken = ""
	s.expiresAt = time.Time{}
	return nil
}

// Info returns the server's view of the access token.
func (s *Session) Info(ctx context.Context) (*SessionInfo, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.SessionInfo(ctx, token)
}

// getValidToken returns a valid access token, refreshing when it is about to expire.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.accessToken != "" && time.Now().Add(refreshBuffer).Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if s.accessToken != "" && time.Now().Add(refreshBuffer).Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if err := s.refreshLocked(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SessionID returns the server-side session id.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// User returns the profile returned at login.
func (s *Session) User() UserDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}
