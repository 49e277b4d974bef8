package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// AccessVerifier is the part of the token codec the middleware needs.
type AccessVerifier interface {
	VerifyAccess(token string) (jwtx.AccessClaims, error)
}

// AuthnMiddleware requires a valid access token in the Authorization header
// and stores its claims in the request context. Access tokens are stateless,
// the session store is never consulted.
func AuthnMiddleware(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.VerifyAccess(raw)
			if err != nil {
				desc := "token verification failed"
				if jwtx.KindOf(err) == jwtx.KindExpired {
					desc = "token expired"
				}
				log.Debug("access token rejected", "kind", jwtx.KindOf(err).String())
				writeBearerError(w, desc)
				return
			}

			ctx = slogx.WithAttrs(ContextWithClaims(ctx, claims),
				"user_id", claims.UserID(),
				"session_id", claims.SID,
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
