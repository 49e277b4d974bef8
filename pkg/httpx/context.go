package httpx

import (
	"context"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
)

// ContextWithClaims stores verified access claims for downstream handlers.
func ContextWithClaims(ctx context.Context, c jwtx.AccessClaims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.UserID())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// ClaimsFromContext returns the claims stored by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.AccessClaims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.AccessClaims)
	return c, ok
}

// PrincipalFromContext is a shortcut for the caller's identity.
func PrincipalFromContext(ctx context.Context) (jwtx.Principal, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return jwtx.Principal{}, false
	}
	return c.Principal(), true
}
