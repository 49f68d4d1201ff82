package http

import (
	"net/http"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
)

// IntrospectHandler serves POST /introspect (RFC 7662) to authenticated
// clients.
type IntrospectHandler struct {
	Clients clientAuth
	Access  *service.AccessTokenValidator
}

// ServeHTTP godoc
//
//	@Summary		Token Introspection
//	@Description	Reports whether an access token is active. Inactive, expired and unknown tokens all return {"active": false}.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token					formData	string	true	"Access token to introspect"
//	@Param			token_type_hint			formData	string	false	"Ignored; only access tokens are introspectable"
//	@Param			client_id				formData	string	false	"Client identifier"
//	@Param			client_assertion_type	formData	string	false	"urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
//	@Param			client_assertion		formData	string	false	"private_key_jwt assertion"
//	@Success		200						{object}	authsdk.IntrospectionResponse
//	@Failure		400						{object}	authsdk.ErrorResponse
//	@Failure		401						{object}	authsdk.ErrorResponse
//	@Router			/introspect [post]
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	if _, err := h.Clients.authenticate(r); err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := h.Access.Introspect(r.Context(), r.PostForm.Get("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !res.Active {
		httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{Active: false})
		return
	}

	c := res.Claims
	resp := authsdk.IntrospectionResponse{
		Active:    true,
		Scope:     c.Scope,
		ClientID:  c.ClientID,
		TokenType: res.TokenType(),
		Sub:       c.Subject,
		Aud:       c.Audience,
		Iss:       c.Issuer,
		Jti:       c.ID,
	}
	if c.ExpiresAt != nil {
		resp.Exp = c.ExpiresAt.Unix()
	}
	if c.IssuedAt != nil {
		resp.Iat = c.IssuedAt.Unix()
	}
	if jkt := c.JKT(); jkt != "" {
		resp.Cnf = &authsdk.Confirmation{JKT: jkt}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
