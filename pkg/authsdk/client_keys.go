package authsdk

import (
	"context"
	"net/http"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}

	return &jwks, nil
}

// GetDiscovery fetches the OpenID provider metadata.
func (c *SDKClient) GetDiscovery(ctx context.Context) (*DiscoveryDocument, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/openid-configuration", nil, nil)
	if err != nil {
		return nil, err
	}

	var doc DiscoveryDocument
	if err := decodeJSON(resp, &doc, http.StatusOK); err != nil {
		return nil, err
	}

	return &doc, nil
}

// GetFAPIConfiguration fetches the FAPI profile metadata.
func (c *SDKClient) GetFAPIConfiguration(ctx context.Context) (*FAPIConfiguration, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/fapi-configuration", nil, nil)
	if err != nil {
		return nil, err
	}

	var cfg FAPIConfiguration
	if err := decodeJSON(resp, &cfg, http.StatusOK); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// KeysInfo reports the signing key state. operatorToken is the server's
// configured operator bearer token.
func (c *SDKClient) KeysInfo(ctx context.Context, operatorToken string) (*KeysInfoResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/keys/info", nil, map[string]string{
		"Authorization": "Bearer " + operatorToken,
	})
	if err != nil {
		return nil, err
	}

	var info KeysInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}

	return &info, nil
}

// RotateKeys triggers an immediate signing key rotation.
func (c *SDKClient) RotateKeys(ctx context.Context, operatorToken string) (*RotateKeyResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/keys/rotate", nil, map[string]string{
		"Authorization": "Bearer " + operatorToken,
	})
	if err != nil {
		return nil, err
	}

	var rotateResp RotateKeyResponse
	if err := decodeJSON(resp, &rotateResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &rotateResp, nil
}
