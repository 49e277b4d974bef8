package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

type RefreshHandler struct {
	Auth    *service.AuthService
	Cookies CookieConfig
}

// ServeHTTP godoc
//
//	@Summary		Rotate the refresh token
//	@Description	Redeems the refreshToken cookie for a new access token and a new refresh token bound to the same session.
//	@Description	Presenting a refresh token that was already redeemed logs the user out of every session.
//	@Description	Every failure is the same 401 and clears the cookie.
//	@Tags			Session
//	@Accept			json
//	@Produce		json
//	@Param			sessionId	query		string					false	"Session the client believes it holds"
//	@Param			request		body		authsdk.SessionRequest	false	"Alternative to the query parameter"
//	@Success		200			{object}	authsdk.RefreshResponse	"Rotated"
//	@Header			200			{string}	Set-Cookie				"rotated refreshToken"
//	@Failure		401			{object}	authsdk.ErrorResponse	"Missing, invalid, expired or reused refresh token"
//	@Failure		429			{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		500			{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/auth/refresh [get]
//	@Router			/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := readRefreshCookie(r)
	sid := claimedSessionID(w, r)

	res, err := h.Auth.Refresh(r.Context(), token, sid)
	if err != nil {
		h.Cookies.clearRefreshCookie(w)
		if errors.Is(err, service.ErrUnauthorized) || errors.Is(err, service.ErrReplayDetected) {
			authsdk.ErrUnauthorized.WriteError(w)
			return
		}
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.Cookies.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresIn)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{
		AccessToken: res.Tokens.AccessToken,
		SessionID:   res.Tokens.SessionID,
	})
}
