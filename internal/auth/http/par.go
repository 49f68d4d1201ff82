package http

import (
	"net/http"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
)

// PARHandler serves POST /par (RFC 9126).
type PARHandler struct {
	Clients clientAuth
	PAR     *service.PARService
}

// ServeHTTP godoc
//
//	@Summary		Pushed Authorization Request
//	@Description	Stores an authorization request for the authenticated client and returns a single-use request_uri valid for 60 seconds.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			response_type			formData	string					true	"Must be code"
//	@Param			client_id				formData	string					false	"Client identifier"
//	@Param			redirect_uri			formData	string					true	"Registered redirect URI"
//	@Param			scope					formData	string					true	"Space-delimited scopes"
//	@Param			state					formData	string					false	"Opaque client state"
//	@Param			nonce					formData	string					false	"OpenID nonce"
//	@Param			code_challenge			formData	string					true	"PKCE S256 challenge"
//	@Param			code_challenge_method	formData	string					true	"Must be S256"
//	@Param			purpose					formData	string					false	"Declared data purpose"
//	@Param			prompt					formData	string					false	"none, login, consent or select_account"
//	@Param			max_age					formData	integer					false	"Maximum authentication age in seconds"
//	@Param			claims					formData	string					false	"JSON claims request"
//	@Param			client_assertion_type	formData	string					false	"urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
//	@Param			client_assertion		formData	string					false	"private_key_jwt assertion"
//	@Success		201						{object}	authsdk.PARResponse
//	@Failure		400						{object}	authsdk.ErrorResponse
//	@Failure		401						{object}	authsdk.ErrorResponse
//	@Router			/par [post]
func (h *PARHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	client, err := h.Clients.authenticate(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := h.PAR.Push(r.Context(), client, authorizationRequest(r.PostForm))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.PARResponse{
		RequestURI: res.RequestURI,
		ExpiresIn:  int(res.ExpiresIn.Seconds()),
	})
}
