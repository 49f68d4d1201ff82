package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

func (c *SDKClient) tokenEndpoint() string {
	return c.url("/token")
}

// doRequest performs an HTTP request with the SDKClient's HTTP client.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// postAuthenticatedForm authenticates the client into form and POSTs it to
// path, adding a DPoP proof when withDPoP is set and a signer is configured.
func (c *SDKClient) postAuthenticatedForm(ctx context.Context, path string, form url.Values, withDPoP bool) (*http.Response, error) {
	now := c.now()
	if c.Auth != nil {
		if err := c.Auth.Apply(form, c.ClientID, c.tokenEndpoint(), now); err != nil {
			return nil, fmt.Errorf("client authentication: %w", err)
		}
	} else {
		form.Set("client_id", c.ClientID)
	}

	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	if withDPoP && c.DPoP != nil {
		proof, err := c.DPoP.Proof(http.MethodPost, c.url(path), "", now)
		if err != nil {
			return nil, err
		}
		headers["DPoP"] = proof
	}

	return c.doRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), headers)
}

// decodeJSON decodes a JSON response into target, or returns an
// *OAuth2Error when the status is not the expected one.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
