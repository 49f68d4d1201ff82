package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// ExchangeCode redeems an authorization code at /token. verifier is the
// PKCE code_verifier the challenge was derived from.
func (c *SDKClient) ExchangeCode(
	ctx context.Context,
	code, redirectURI, verifier string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}

	return c.requestToken(ctx, data)
}

// RefreshGrant rotates a refresh token. The old token is invalid once this
// returns successfully.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	return c.requestToken(ctx, data)
}

// Introspect asks the server whether token is active. Unknown tokens are
// not an error; they come back with Active=false.
func (c *SDKClient) Introspect(ctx context.Context, token string) (*IntrospectionResponse, error) {
	data := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	}

	resp, err := c.postAuthenticatedForm(ctx, "/introspect", data, false)
	if err != nil {
		return nil, err
	}

	var introspectResp IntrospectionResponse
	if err := decodeJSON(resp, &introspectResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &introspectResp, nil
}

func (c *SDKClient) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	resp, err := c.postAuthenticatedForm(ctx, "/token", data, true)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}
