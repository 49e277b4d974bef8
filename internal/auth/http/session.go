package http

import (
	"net/http"
	"slices"

	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

type SessionHandler struct{}

// ServeHTTP godoc
//
//	@Summary		Describe the current session
//	@Description	Returns the identity and session carried by a valid access token. Nothing is read from the store.
//	@Tags			Session
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.SessionInfo		"Token claims"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or expired access token"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/session [get].
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	roles := slices.Clone(claims.Roles)
	if roles == nil {
		roles = []string{}
	}

	info := authsdk.SessionInfo{
		UserID:    claims.UserID(),
		Username:  claims.Username,
		Roles:     roles,
		SessionID: claims.SID,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	httpx.WriteJSON(w, http.StatusOK, info)
}
