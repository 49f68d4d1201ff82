package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
)

// DefaultSubjectHeader carries the end user authenticated by the upstream
// login component.
const DefaultSubjectHeader = "X-Authenticated-Subject"

// AuthorizeHandler serves GET /authorize. The user agent is answered with a
// redirect to the client once the redirect URI is trusted, and with a JSON
// error before that.
type AuthorizeHandler struct {
	Authorize     *service.AuthorizeService
	SubjectHeader string
}

// ServeHTTP godoc
//
//	@Summary		Authorization Endpoint
//	@Description	Issues an authorization code for a pushed request (request_uri) or, for clients that allow it, an inline request.
//	@Description	The code, state and iss are returned on the redirect URI.
//	@Tags			OAuth2
//	@Produce		json
//	@Param			client_id				query		string					true	"Client identifier"
//	@Param			request_uri				query		string					false	"request_uri returned by /par"
//	@Param			state					query		string					false	"Overrides the pushed state"
//	@Param			response_type			query		string					false	"Inline requests only"
//	@Param			redirect_uri			query		string					false	"Inline requests only"
//	@Param			scope					query		string					false	"Inline requests only"
//	@Param			code_challenge			query		string					false	"Inline requests only"
//	@Param			code_challenge_method	query		string					false	"Inline requests only"
//	@Success		302						{string}	string					"Redirect to the client"
//	@Failure		400						{object}	authsdk.ErrorResponse	"Client or redirect URI could not be established"
//	@Header			302						{string}	Location				"redirect_uri?code=...&state=...&iss=..."
//	@Router			/authorize [get]
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := h.SubjectHeader
	if header == "" {
		header = DefaultSubjectHeader
	}

	res, err := h.Authorize.Authorize(r.Context(), service.AuthorizeRequest{
		AuthorizationRequest: authorizationRequest(r.URL.Query()),
		Subject:              r.Header.Get(header),
	})
	httpx.NoCache(w)

	var redirectErr *service.RedirectError
	switch {
	case err == nil:
		http.Redirect(w, r, res.Location(), http.StatusFound)
	case errors.As(err, &redirectErr):
		oe := oauthError(r, redirectErr.Err)
		http.Redirect(w, r, redirectErr.Location(oe.Code, oe.Description), http.StatusFound)
	default:
		writeServiceError(w, r, err)
	}
}
