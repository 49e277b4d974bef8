package httpx_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]jwtx.AccessClaims

func (s stubVerifier) VerifyAccess(token string) (jwtx.AccessClaims, error) {
	if token == "expired" {
		return jwtx.AccessClaims{}, &jwtx.VerifyError{Kind: jwtx.KindExpired, Err: jwtx.ErrExpired}
	}
	c, ok := s[token]
	if !ok {
		return jwtx.AccessClaims{}, &jwtx.VerifyError{Kind: jwtx.KindMalformed, Err: errors.New("bad")}
	}
	return c, nil
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	claims := jwtx.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
		SID:              "s-1",
		Username:         "alice",
		Roles:            []string{"staff"},
	}
	v := stubVerifier{"good": claims}

	var got jwtx.Principal
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := httpx.PrincipalFromContext(r.Context())
		require.True(t, ok)
		got = p
		require.Equal(t, "u-1", httpx.UserIDKeyExtractor(r))
		w.WriteHeader(http.StatusOK)
	}), httpx.AuthnMiddleware(v))

	tests := []struct {
		name   string
		header string
		status int
		desc   string
	}{
		{"valid", "Bearer good", http.StatusOK, ""},
		{"lowercase scheme", "bearer good", http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "missing bearer token"},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "missing bearer token"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "missing bearer token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "token verification failed"},
		{"expired token", "Bearer expired", http.StatusUnauthorized, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				require.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`))
				require.Contains(t, rec.Body.String(), tt.desc)
				require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			}
		})
	}

	require.Equal(t, jwtx.Principal{UserID: "u-1", Username: "alice", Roles: []string{"staff"}}, got)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		SessionID string `json:"sessionId"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sessionId":"abc"}`))
	require.NoError(t, httpx.DecodeJSON(rec, req, &dst))
	require.Equal(t, "abc", dst.SessionID)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, httpx.DecodeJSON(rec, req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sessionId":`))
	require.Error(t, httpx.DecodeJSON(rec, req, &dst))
}
