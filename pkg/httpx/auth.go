package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
)

type ctxKey string

const (
	ctxKeyPrincipal ctxKey = "principal"
)

// Principal is the caller identity established by an Authenticator.
type Principal struct {
	Subject  string
	ClientID string
	Scopes   []string
	Claims   any
}

// Authenticator inspects the request and returns the caller or an error.
// Returning an *AuthnError controls the WWW-Authenticate challenge.
type Authenticator func(r *http.Request) (Principal, error)

// AuthnError describes an RFC 6750 / RFC 9449 authentication failure.
type AuthnError struct {
	Scheme      string // "Bearer" or "DPoP"
	Code        string // e.g. "invalid_token", "invalid_dpop_proof"
	Description string
}

func (e *AuthnError) Error() string { return e.Code + ": " + e.Description }

// ContextWithPrincipal stores p for downstream handlers.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// AuthnMiddleware rejects requests the authenticator refuses and injects the
// Principal into the context otherwise.
func AuthnMiddleware(authn Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authn(r)
			if err != nil {
				var ae *AuthnError
				if !errors.As(err, &ae) {
					ae = &AuthnError{Scheme: "Bearer", Code: "invalid_token", Description: "token verification failed"}
				}
				slogx.FromContext(r.Context()).Warn("request authentication failed", "error", err)
				writeChallenge(w, http.StatusUnauthorized, ae)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAnyScope lets the request through when the caller holds at least
// one of the listed scopes.
func RequireAnyScope(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			for _, s := range p.Scopes {
				if _, ok := want[s]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("WWW-Authenticate",
				`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
			WriteError(w, http.StatusForbidden, "insufficient_scope",
				"one of these scopes is required: "+strings.Join(required, " "))
		})
	}
}

// RequireStaticBearer guards operator endpoints with a shared secret. An
// empty token rejects every request.
func RequireStaticBearer(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := BearerToken(r)
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeChallenge(w, http.StatusUnauthorized, &AuthnError{
					Scheme:      "Bearer",
					Code:        "invalid_token",
					Description: "operator token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the credential of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token := AuthorizationScheme(r)
	if !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// AuthorizationScheme splits the Authorization header into scheme and credential.
func AuthorizationScheme(r *http.Request) (scheme, credential string) {
	scheme, credential, _ = strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	return scheme, strings.TrimSpace(credential)
}

func writeChallenge(w http.ResponseWriter, status int, ae *AuthnError) {
	scheme := ae.Scheme
	if scheme == "" {
		scheme = "Bearer"
	}
	w.Header().Set("WWW-Authenticate",
		scheme+` error="`+ae.Code+`", error_description="`+ae.Description+`"`)
	WriteError(w, status, ae.Code, ae.Description)
}
