package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

// UserInfoHandler serves GET /userinfo. It runs behind AccessTokenAuthenticator.
type UserInfoHandler struct{}

// ServeHTTP godoc
//
//	@Summary		OpenID UserInfo
//	@Description	Returns the subject of the access token, plus preferred_username and name when the token carries the profile scope.
//	@Tags			OpenID
//	@Produce		json
//	@Param			DPoP	header		string	false	"DPoP proof with ath, for DPoP-bound tokens"
//	@Success		200		{object}	authsdk.UserInfoResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Missing or invalid access token or DPoP proof"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Token lacks openid or profile scope"
//	@Security		BearerAuth
//	@Router			/userinfo [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())
	claims, ok := p.Claims.(*jwtx.AccessClaims)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	info, err := service.UserInfoFor(claims)
	if err != nil {
		scheme := domain.TokenTypeBearer
		if claims.JKT() != "" {
			scheme = domain.TokenTypeDPoP
		}
		writeTokenError(w, r, scheme, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfoResponse{
		Sub:               info.Subject,
		PreferredUsername: info.PreferredUsername,
		Name:              info.Name,
	})
}

// AccessTokenAuthenticator validates Bearer and DPoP access tokens presented
// to this server's protected resources.
func AccessTokenAuthenticator(access *service.AccessTokenValidator) httpx.Authenticator {
	return func(r *http.Request) (httpx.Principal, error) {
		scheme, token := httpx.AuthorizationScheme(r)
		switch {
		case strings.EqualFold(scheme, domain.TokenTypeBearer):
			scheme = domain.TokenTypeBearer
		case strings.EqualFold(scheme, domain.TokenTypeDPoP):
			scheme = domain.TokenTypeDPoP
		}

		claims, err := access.Validate(r.Context(), service.ProtectedRequest{
			Scheme:    scheme,
			Token:     token,
			DPoPProof: r.Header.Get("DPoP"),
			Method:    r.Method,
			Path:      r.URL.Path,
		})
		if err != nil {
			if scheme != domain.TokenTypeDPoP {
				scheme = domain.TokenTypeBearer
			}
			return httpx.Principal{}, authnError(scheme, err)
		}
		return httpx.Principal{
			Subject:  claims.Subject,
			ClientID: claims.ClientID,
			Scopes:   claims.Scopes(),
			Claims:   claims,
		}, nil
	}
}

func authnError(scheme string, err error) error {
	code := service.Code(err)
	if !errors.Is(err, service.ErrInvalidToken) && !errors.Is(err, service.ErrInvalidDPoPProof) {
		// Storage failures are surfaced to the middleware as invalid_token
		// and logged there.
		return err
	}
	desc := service.Description(err)
	if desc == "" {
		desc = "access token rejected"
	}
	return &httpx.AuthnError{Scheme: scheme, Code: code, Description: desc}
}
