package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the authorization server on behalf of one client.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// ClientID identifies the client on every request.
	ClientID string

	// Auth authenticates the client at /par, /token and /introspect. For
	// tls_client_auth the certificate lives on HTTPClient's transport.
	Auth ClientAuth

	// DPoP, when set, binds issued tokens to its key.
	DPoP *DPoPSigner

	// Now is used for assertion and proof timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewSDKClient creates a client for baseURL, which is also the issuer.
func NewSDKClient(baseURL, clientID string, auth ClientAuth) *SDKClient {
	return &SDKClient{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		ClientID: clientID,
		Auth:     auth,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithDPoP returns the client with DPoP proofs enabled.
func (c *SDKClient) WithDPoP(d *DPoPSigner) *SDKClient {
	c.DPoP = d
	return c
}

func (c *SDKClient) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
