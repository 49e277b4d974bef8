package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// SDKClient is a client for the tabauth session service. Its HTTP client
// always has a cookie jar, which is where the refresh token lives.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	base *url.URL
}

// Option customizes an SDKClient.
type Option func(*SDKClient)

// WithHTTPClient uses hc instead of a default client. A jar is added when hc
// has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *SDKClient) { c.HTTPClient = hc }
}

// NewSDKClient creates a new client for baseURL.
func NewSDKClient(baseURL string, opts ...Option) (*SDKClient, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &SDKClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		base:       u,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.HTTPClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.HTTPClient.Jar = jar
	}
	return c, nil
}

// RefreshCookie returns the refresh token currently held in the jar.
func (c *SDKClient) RefreshCookie() string {
	for _, ck := range c.HTTPClient.Jar.Cookies(c.base) {
		if ck.Name == RefreshCookieName {
			return ck.Value
		}
	}
	return ""
}

// SetRefreshCookie replaces the refresh token in the jar, for example to
// resume from a token persisted elsewhere.
func (c *SDKClient) SetRefreshCookie(token string) {
	c.HTTPClient.Jar.SetCookies(c.base, []*http.Cookie{{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		Secure:   c.base.Scheme == "https",
		HttpOnly: true,
	}})
}

// LoginRaw performs POST /auth/login and returns the response body. The
// refresh cookie lands in the jar.
func (c *SDKClient) LoginRaw(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, "")
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and returns a Session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	out, err := c.LoginRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(c, out.AccessToken, out.SessionID, out.UserDocument), nil
}

// Refresh performs GET /auth/refresh with the jar's cookie. sessionID may be
// empty.
func (c *SDKClient) Refresh(ctx context.Context, sessionID string) (*RefreshResponse, error) {
	path := "/auth/refresh"
	if sessionID != "" {
		path += "?" + url.Values{"sessionId": {sessionID}}.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var out RefreshResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout performs POST /auth/logout. The server answers 204 whatever
// happened, so only transport failures are reported.
func (c *SDKClient) Logout(ctx context.Context, sessionID string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/logout", SessionRequest{SessionID: sessionID}, "")
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// SessionInfo performs GET /auth/session with accessToken.
func (c *SDKClient) SessionInfo(ctx context.Context, accessToken string) (*SessionInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/session", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var out SessionInfo
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
