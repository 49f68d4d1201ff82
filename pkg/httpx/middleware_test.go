package httpx_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestGetRemoteIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"peer address", "192.168.1.1:12345", nil, "192.168.1.1"},
		{"forwarded for", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, "203.0.113.1"},
		{"real ip", "192.168.1.1:12345", map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
		{"no port", "unix", nil, "unix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.GetRemoteIP(req))
		})
	}
}

func TestAuthnMiddleware(t *testing.T) {
	var got httpx.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = httpx.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("success injects principal", func(t *testing.T) {
		h := httpx.AuthnMiddleware(func(r *http.Request) (httpx.Principal, error) {
			return httpx.Principal{Subject: "user_1", Scopes: []string{"openid"}}, nil
		})(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/userinfo", nil))

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "user_1", got.Subject)
	})

	t.Run("typed error controls challenge", func(t *testing.T) {
		h := httpx.AuthnMiddleware(func(r *http.Request) (httpx.Principal, error) {
			return httpx.Principal{}, &httpx.AuthnError{Scheme: "DPoP", Code: "invalid_dpop_proof", Description: "bad proof"}
		})(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/userinfo", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), `DPoP error="invalid_dpop_proof"`))
	})

	t.Run("plain error becomes invalid_token", func(t *testing.T) {
		h := httpx.AuthnMiddleware(func(r *http.Request) (httpx.Principal, error) {
			return httpx.Principal{}, errors.New("nope")
		})(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/userinfo", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`)
	})
}

func TestRequireAnyScope(t *testing.T) {
	h := httpx.RequireAnyScope("openid", "profile")(okHandler)

	withScopes := func(scopes ...string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(httpx.ContextWithPrincipal(req.Context(), httpx.Principal{Scopes: scopes}))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withScopes("accounts", "profile"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withScopes("accounts"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
}

func TestRequireStaticBearer(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{"match", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"unconfigured", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.RequireStaticBearer(tt.configured)(okHandler)
			req := httptest.NewRequest(http.MethodPost, "/keys/rotate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIsFormContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	require.True(t, httpx.IsFormContentType(req))

	req.Header.Set("Content-Type", "application/json")
	require.False(t, httpx.IsFormContentType(req))
}
