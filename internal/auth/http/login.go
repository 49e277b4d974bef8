package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

type LoginHandler struct {
	Auth    *service.AuthService
	Cookies CookieConfig
}

// ServeHTTP godoc
//
//	@Summary		Log in
//	@Description	Verifies a username and password (plus a TOTP code for enrolled accounts) and opens a new session.
//	@Description	The access token is returned in the body. The refresh token is only ever set as the HttpOnly refreshToken cookie.
//	@Tags			Session
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Session opened"
//	@Header			200		{string}	Set-Cookie				"refreshToken; HttpOnly; Secure; SameSite=None; Max-Age=1800"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Missing username or password, or malformed body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials, inactive account or one-time code required"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Unknown username"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	// 1. Decode request
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		l.Debug("invalid login body", slog.Any("err", err))
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	// 2. Login
	res, err := h.Auth.Login(r.Context(), service.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		OTP:      req.OTP,
	})
	if err != nil {
		loginError(err).WriteError(w)
		return
	}

	// 3. Respond, refresh token in the cookie only
	h.Cookies.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresIn)
	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		AccessToken:  res.Tokens.AccessToken,
		SessionID:    res.Session.ID,
		UserDocument: authsdk.UserDocument(res.User),
	})
}

func loginError(err error) *authsdk.APIError {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return authsdk.ErrInvalidRequest
	case errors.Is(err, service.ErrUserNotFound):
		return authsdk.ErrUserNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrUserInactive):
		return authsdk.ErrAccountInactive
	case errors.Is(err, service.ErrMFARequired):
		return authsdk.ErrMFARequired
	default:
		return authsdk.ErrServerError
	}
}
