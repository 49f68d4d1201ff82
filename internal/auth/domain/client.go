package domain

import (
	"slices"
	"time"
)

// Client authentication methods.
const (
	AuthMethodTLSClientAuth = "tls_client_auth"
	AuthMethodPrivateKeyJWT = "private_key_jwt"
)

// Client statuses. Only active clients may authenticate.
const (
	ClientStatusActive    = "active"
	ClientStatusSuspended = "suspended"
	ClientStatusRevoked   = "revoked"
)

// Client is a registered OAuth client and its trust material.
type Client struct {
	ID           string
	Name         string
	Status       string
	AuthMethod   string
	RedirectURIs []string

	// Scopes, when non-empty, bounds what the client may request.
	Scopes     []string
	RequirePAR bool

	// CertFingerprint is the SHA-256 of the client's DER certificate as
	// colon-separated upper-case hex. Required for tls_client_auth.
	CertFingerprint string

	// JWKS is the client's public JWK Set. Required for private_key_jwt.
	JWKS []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Client) IsActive() bool { return c.Status == ClientStatusActive }

// HasRedirectURI reports exact, unnormalized membership.
func (c Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// DisallowedScopes returns the requested scopes outside the client's
// allowance. A client without a scope list allows anything.
func (c Client) DisallowedScopes(requested []string) []string {
	if len(c.Scopes) == 0 {
		return nil
	}
	var out []string
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			out = append(out, s)
		}
	}
	return out
}
