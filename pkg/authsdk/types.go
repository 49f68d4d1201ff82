package authsdk

import (
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the server's error body.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_grant"`
	ErrorDescription string `json:"error_description" example:"invalid authorization grant"`
	Timestamp        string `json:"timestamp" example:"2025-01-01T12:00:00Z"`
}

// ============================================================================
// Authorization Types
// ============================================================================

// AuthorizationRequest holds the parameters of an authorization request,
// pushed to /par or sent inline to /authorize.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Purpose             string
	Prompt              string
	MaxAge              *int
	Claims              string
}

// PARResponse is returned by POST /par.
type PARResponse struct {
	RequestURI string `json:"request_uri" example:"urn:ietf:params:oauth:request_uri:6f1c2a8e-3b7d-4b8e-9a55-2f0d1c3e4b5a"`
	ExpiresIn  int    `json:"expires_in" example:"60"`
}

// AuthorizationResponse is what the client receives on its redirect URI.
type AuthorizationResponse struct {
	Code  string
	State string
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is the token endpoint response.
type TokenResponse struct {
	AccessToken string `json:"access_token" example:"eyJhbGciOiJQUzI1NiIsImtpZCI6ImtpZF8wMWoiLCJ0eXAiOiJhdCtqd3QifQ..."`

	// TokenType is "DPoP" when the token is bound to a DPoP key, else "Bearer".
	TokenType string `json:"token_type" example:"Bearer"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in" example:"900"`

	RefreshToken string `json:"refresh_token,omitempty" example:"q2xZ6v3Qb9n1w8YkRz0pLm4tHc7sJd5fGa2eUo9iXyE"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty" example:"openid accounts"`
}

// IntrospectionResponse is the RFC 7662 introspection response. Inactive
// tokens only carry Active=false.
type IntrospectionResponse struct {
	Active bool `json:"active"`

	Scope     string        `json:"scope,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
	TokenType string        `json:"token_type,omitempty"`
	Exp       int64         `json:"exp,omitempty"`
	Iat       int64         `json:"iat,omitempty"`
	Sub       string        `json:"sub,omitempty"`
	Aud       []string      `json:"aud,omitempty"`
	Iss       string        `json:"iss,omitempty"`
	Jti       string        `json:"jti,omitempty"`
	Cnf       *Confirmation `json:"cnf,omitempty"`
}

// Confirmation mirrors the cnf claim.
type Confirmation struct {
	JKT string `json:"jkt,omitempty"`
}

// UserInfoResponse is returned by GET /userinfo.
type UserInfoResponse struct {
	Sub               string `json:"sub" example:"user_42"`
	PreferredUsername string `json:"preferred_username,omitempty" example:"user_42"`
	Name              string `json:"name,omitempty" example:"user_42"`
}

// ============================================================================
// Discovery Types
// ============================================================================

// DiscoveryDocument is the subset of OpenID provider metadata the server publishes.
type DiscoveryDocument struct {
	Issuer                                     string   `json:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint"`
	PushedAuthorizationRequestEndpoint         string   `json:"pushed_authorization_request_endpoint"`
	IntrospectionEndpoint                      string   `json:"introspection_endpoint"`
	UserinfoEndpoint                           string   `json:"userinfo_endpoint"`
	JWKSURI                                    string   `json:"jwks_uri"`
	RequirePushedAuthorizationRequests         bool     `json:"require_pushed_authorization_requests"`
	ResponseTypesSupported                     []string `json:"response_types_supported"`
	ResponseModesSupported                     []string `json:"response_modes_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported"`
	SubjectTypesSupported                      []string `json:"subject_types_supported"`
	ScopesSupported                            []string `json:"scopes_supported,omitempty"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	IDTokenSigningAlgValuesSupported           []string `json:"id_token_signing_alg_values_supported"`
	DPoPSigningAlgValuesSupported              []string `json:"dpop_signing_alg_values_supported"`
	TLSClientCertificateBoundAccessTokens      bool     `json:"tls_client_certificate_bound_access_tokens"`
	AuthorizationResponseIssParameterSupported bool     `json:"authorization_response_iss_parameter_supported"`
	ClaimsParameterSupported                   bool     `json:"claims_parameter_supported"`
}

// FAPIConfiguration describes the FAPI 2.0 profile the server enforces.
type FAPIConfiguration struct {
	Issuer                                     string   `json:"issuer"`
	FAPIProfile                                string   `json:"fapi_profile" example:"2.0"`
	FAPISecurityProfile                        string   `json:"fapi_security_profile" example:"baseline"`
	RequirePushedAuthorizationRequests         bool     `json:"require_pushed_authorization_requests"`
	RequireSignedRequestObject                 bool     `json:"require_signed_request_object"`
	RequirePKCE                                bool     `json:"require_pkce"`
	PKCECodeChallengeMethodsSupported          []string `json:"pkce_code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	TokenBindingMethodsSupported               []string `json:"token_binding_methods_supported"`
	TLSClientCertificateBoundAccessTokens      bool     `json:"tls_client_certificate_bound_access_tokens"`
	DPoPSigningAlgValuesSupported              []string `json:"dpop_signing_alg_values_supported"`
	IDTokenSigningAlgValuesSupported           []string `json:"id_token_signing_alg_values_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported"`
	ResponseTypesSupported                     []string `json:"response_types_supported"`
	ResponseModesSupported                     []string `json:"response_modes_supported"`
	ScopesSupported                            []string `json:"scopes_supported,omitempty"`

	// Lifetimes in seconds.
	MaxAuthorizationCodeLifetime int `json:"max_authorization_code_lifetime" example:"600"`
	MaxAccessTokenLifetime       int `json:"max_access_token_lifetime" example:"900"`
	MaxRefreshTokenLifetime      int `json:"max_refresh_token_lifetime" example:"3600"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status" example:"ok"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty" example:"1h23m45s"`

	// Version is the service version string
	Version string `json:"version,omitempty" example:"1.0.0"`

	// Checks is only set by /readyz.
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of each dependency.
type HealthChecks struct {
	Store  string `json:"store" example:"ok"`
	Signer string `json:"signer" example:"ok"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set published at
// /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Key Management Types
// ============================================================================

// SigningKeyInfo describes one published signing key.
type SigningKeyInfo struct {
	KID       string `json:"kid" example:"kid_01jbx9t2v7w3d8c4m5n6p7q8r9"`
	Algorithm string `json:"alg" example:"PS256"`
	Status    string `json:"status" example:"current"`
	CreatedAt string `json:"created_at" example:"2025-01-01T00:00:00Z"`
	RetiredAt string `json:"retired_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	PublicKey string `json:"public_key_pem,omitempty"`
}

// KeysInfoResponse is returned by GET /keys/info.
type KeysInfoResponse struct {
	CurrentKID       string           `json:"current_kid" example:"kid_01jbx9t2v7w3d8c4m5n6p7q8r9"`
	Algorithm        string           `json:"alg" example:"PS256"`
	CreatedAt        string           `json:"created_at" example:"2025-01-01T00:00:00Z"`
	AgeHours         float64          `json:"age_hours" example:"3.5"`
	RotationInterval string           `json:"rotation_interval" example:"24h0m0s"`
	GracePeriod      string           `json:"grace_period" example:"1h0m0s"`
	NextRotation     string           `json:"next_rotation,omitempty" example:"2025-01-02T00:00:00Z"`
	PublishedKeys    int              `json:"published_keys" example:"2"`
	Keys             []SigningKeyInfo `json:"keys"`
}

// RotateKeyResponse is returned by POST /keys/rotate.
type RotateKeyResponse struct {
	PreviousKID  string `json:"previous_key_id,omitempty" example:"kid_01jbx9t2v7w3d8c4m5n6p7q8r9"`
	NewKID       string `json:"new_key_id" example:"kid_01jby0a1b2c3d4e5f6g7h8j9k0"`
	RotationTime string `json:"rotation_time" example:"2025-01-02T00:00:00Z"`
}
