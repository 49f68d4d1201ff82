package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RequestURIPrefix prefixes every request_uri returned by /par.
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

func (r AuthorizationRequest) values(clientID string) url.Values {
	v := url.Values{}
	v.Set("response_type", "code")
	if r.ClientID != "" {
		clientID = r.ClientID
	}
	v.Set("client_id", clientID)
	v.Set("redirect_uri", r.RedirectURI)
	if len(r.Scopes) > 0 {
		v.Set("scope", strings.Join(r.Scopes, " "))
	}
	setIf(v, "state", r.State)
	setIf(v, "nonce", r.Nonce)
	setIf(v, "code_challenge", r.CodeChallenge)
	setIf(v, "code_challenge_method", r.CodeChallengeMethod)
	setIf(v, "purpose", r.Purpose)
	setIf(v, "prompt", r.Prompt)
	setIf(v, "claims", r.Claims)
	if r.MaxAge != nil {
		v.Set("max_age", strconv.Itoa(*r.MaxAge))
	}
	return v
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// WithPKCE copies the challenge into the request.
func (r AuthorizationRequest) WithPKCE(p *PKCEChallenge) AuthorizationRequest {
	r.CodeChallenge = p.Challenge
	r.CodeChallengeMethod = p.Method
	return r
}

// PushAuthorizationRequest sends the request to /par and returns the
// single-use request_uri.
func (c *SDKClient) PushAuthorizationRequest(ctx context.Context, req AuthorizationRequest) (*PARResponse, error) {
	resp, err := c.postAuthenticatedForm(ctx, "/par", req.values(c.ClientID), false)
	if err != nil {
		return nil, err
	}

	var par PARResponse
	if err := decodeJSON(resp, &par, http.StatusCreated); err != nil {
		return nil, err
	}
	return &par, nil
}

// BuildAuthorizeURL returns the /authorize URL for a pushed request. state
// may be empty, in which case the pushed state is echoed back.
func (c *SDKClient) BuildAuthorizeURL(requestURI, state string) string {
	params := url.Values{}
	params.Set("client_id", c.ClientID)
	params.Set("request_uri", requestURI)
	setIf(params, "state", state)
	return c.url("/authorize") + "?" + params.Encode()
}

// BuildInlineAuthorizeURL returns an /authorize URL carrying every parameter
// in the query, for clients not required to use PAR.
func (c *SDKClient) BuildInlineAuthorizeURL(req AuthorizationRequest) string {
	return c.url("/authorize") + "?" + req.values(c.ClientID).Encode()
}

// Authorize follows an authorize URL up to the redirect and returns the
// code and state from it. headers lets callers pass what an upstream login
// component would set, such as the authenticated subject.
func (c *SDKClient) Authorize(ctx context.Context, authorizeURL string, headers map[string]string) (*AuthorizationResponse, error) {
	noRedirectClient := &http.Client{
		Timeout:   c.HTTPClient.Timeout,
		Transport: c.HTTPClient.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := noRedirectClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		var ignored struct{}
		return nil, decodeJSON(resp, &ignored, http.StatusFound)
	}
	resp.Body.Close()

	return ParseAuthorizationRedirect(resp.Header.Get("Location"))
}

// ParseAuthorizationRedirect extracts code and state from a redirect
// Location, or the OAuth2 error it carries.
func ParseAuthorizationRedirect(location string) (*AuthorizationResponse, error) {
	if location == "" {
		return nil, fmt.Errorf("redirect response missing Location header")
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	q := u.Query()

	if code := q.Get("error"); code != "" {
		return nil, &OAuth2Error{
			StatusCode:  http.StatusFound,
			Code:        code,
			Description: q.Get("error_description"),
		}
	}
	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("redirect missing authorization code")
	}
	return &AuthorizationResponse{Code: code, State: q.Get("state")}, nil
}
