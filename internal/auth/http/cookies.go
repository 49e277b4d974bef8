package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

// CookieConfig controls where the refresh cookie is scoped. The cookie is
// always HttpOnly, Secure and SameSite=None.
type CookieConfig struct {
	Domain string
	Path   string
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// setRefreshCookie hands the refresh token to the browser for ttl.
func (c CookieConfig) setRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsdk.RefreshCookieName,
		Value:    token,
		Domain:   c.Domain,
		Path:     c.path(),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// clearRefreshCookie expires the refresh cookie immediately.
func (c CookieConfig) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsdk.RefreshCookieName,
		Value:    "",
		Domain:   c.Domain,
		Path:     c.path(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func readRefreshCookie(r *http.Request) string {
	ck, err := r.Cookie(authsdk.RefreshCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

// claimedSessionID returns the session id a client says it is refreshing or
// logging out of, from the query string first and then the JSON body.
func claimedSessionID(w http.ResponseWriter, r *http.Request) string {
	if sid := r.URL.Query().Get("sessionId"); sid != "" {
		return sid
	}

	var req authsdk.SessionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		return ""
	}
	return req.SessionID
}
