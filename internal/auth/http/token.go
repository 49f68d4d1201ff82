package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
)

// TokenHandler serves POST /token for the authorization_code and
// refresh_token grants.
type TokenHandler struct {
	Clients clientAuth
	Tokens  *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Exchanges an authorization code or a refresh token for tokens. Send a DPoP header to receive DPoP-bound tokens.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type				formData	string					true	"Grant type"	Enums(authorization_code, refresh_token)
//	@Param			code					formData	string					false	"Authorization code (authorization_code grant)"
//	@Param			redirect_uri			formData	string					false	"Redirect URI used at /authorize (authorization_code grant)"
//	@Param			code_verifier			formData	string					false	"PKCE verifier (authorization_code grant)"
//	@Param			refresh_token			formData	string					false	"Refresh token (refresh_token grant)"
//	@Param			scope					formData	string					false	"Narrowed scope (refresh_token grant)"
//	@Param			client_id				formData	string					false	"Client identifier"
//	@Param			client_assertion_type	formData	string					false	"urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
//	@Param			client_assertion		formData	string					false	"private_key_jwt assertion"
//	@Param			DPoP					header		string					false	"DPoP proof for POST {issuer}/token"
//	@Success		200						{object}	authsdk.TokenResponse
//	@Failure		400						{object}	authsdk.ErrorResponse
//	@Failure		401						{object}	authsdk.ErrorResponse
//	@Failure		503						{object}	authsdk.ErrorResponse	"Signing keys unavailable"
//	@Header			200						{string}	Cache-Control			"no-store"
//	@Router			/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	grantType := r.PostForm.Get("grant_type")
	if grantType == "" {
		authsdk.ErrInvalidRequest.WithDescription("grant_type is required").WriteError(w)
		return
	}
	if grantType != service.GrantTypeAuthorizationCode && grantType != service.GrantTypeRefreshToken {
		authsdk.ErrUnsupportedGrantType.WriteError(w)
		return
	}

	client, err := h.Clients.authenticate(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	proof := r.Header.Get("DPoP")
	var set domain.TokenSet
	switch grantType {
	case service.GrantTypeAuthorizationCode:
		set, err = h.Tokens.ExchangeCode(r.Context(), client, service.CodeGrant{
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			DPoPProof:    proof,
		})
	case service.GrantTypeRefreshToken:
		set, err = h.Tokens.Refresh(r.Context(), client, service.RefreshGrant{
			RefreshToken: r.PostForm.Get("refresh_token"),
			Scope:        r.PostForm.Get("scope"),
			DPoPProof:    proof,
		})
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  set.AccessToken,
		TokenType:    set.TokenType,
		ExpiresIn:    int(set.ExpiresIn.Seconds()),
		RefreshToken: set.RefreshToken,
		IDToken:      set.IDToken,
		Scope:        strings.Join(set.Scopes, " "),
	})
}
