package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
)

var oauthErrors = map[error]*authsdk.OAuth2Error{
	service.ErrInvalidRequest:          authsdk.ErrInvalidRequest,
	service.ErrInvalidRequestURI:       authsdk.ErrInvalidRequestURI,
	service.ErrInvalidClient:           authsdk.ErrInvalidClient,
	service.ErrUnauthorizedClient:      authsdk.ErrUnauthorizedClient,
	service.ErrInvalidGrant:            authsdk.ErrInvalidGrant,
	service.ErrInvalidScope:            authsdk.ErrInvalidScope,
	service.ErrInvalidDPoPProof:        authsdk.ErrInvalidDPoPProof,
	service.ErrUnsupportedGrantType:    authsdk.ErrUnsupportedGrantType,
	service.ErrUnsupportedResponseType: authsdk.ErrUnsupportedResponseType,
	service.ErrInvalidToken:            authsdk.ErrInvalidToken,
	service.ErrInsufficientScope:       authsdk.ErrInsufficientScope,
	service.ErrKeysNotReady:            authsdk.ErrTemporarilyUnavailable,
}

// oauthError maps a service error onto its OAuth error response. Grant
// failures keep the generic description; server faults are logged and
// described generically.
func oauthError(r *http.Request, err error) *authsdk.OAuth2Error {
	for sentinel, oe := range oauthErrors {
		if !errors.Is(err, sentinel) {
			continue
		}
		if sentinel == service.ErrInvalidGrant || sentinel == service.ErrKeysNotReady {
			return oe
		}
		if desc := service.Description(err); desc != "" {
			return oe.WithDescription(desc)
		}
		return oe
	}
	slogx.FromContext(r.Context()).Error("request failed", "error", err)
	return authsdk.ErrServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	oauthError(r, err).WriteError(w)
}

// writeTokenError answers a protected resource request with an RFC 6750 or
// RFC 9449 challenge.
func writeTokenError(w http.ResponseWriter, r *http.Request, scheme string, err error) {
	oe := oauthError(r, err)
	if scheme == "" {
		scheme = "Bearer"
	}
	w.Header().Set("WWW-Authenticate",
		scheme+` error="`+oe.Code+`", error_description="`+oe.Description+`"`)
	oe.WriteError(w)
}

// parseForm enforces a form-encoded body and parses it.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Content-Type") != "" && !httpx.IsFormContentType(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return false
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return false
	}
	return true
}
