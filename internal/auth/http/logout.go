package http

import (
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

type LogoutHandler struct {
	Auth    *service.AuthService
	Cookies CookieConfig
}

// ServeHTTP godoc
//
//	@Summary		Log out
//	@Description	Deletes the session named by the refreshToken cookie and clears the cookie.
//	@Description	Always succeeds, whether or not a session was found.
//	@Tags			Session
//	@Accept			json
//	@Param			request	body	authsdk.SessionRequest	false	"Session the client believes it holds"
//	@Success		204		"Logged out"
//	@Header			204		{string}	Set-Cookie				"cleared refreshToken"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Auth.Logout(r.Context(), readRefreshCookie(r), claimedSessionID(w, r))

	h.Cookies.clearRefreshCookie(w)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
