package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

const wellKnownCacheControl = "public, max-age=3600"

// JWKSHandler publishes the current and retiring signing keys.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify access and ID tokens: the current key and, during a grace period, the previous one.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Signing keys not initialized"
//	@Header			200	{string}	Cache-Control			"public, max-age=3600"
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys *jwtx.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !keys.IsReady() {
			authsdk.ErrTemporarilyUnavailable.WithDescription("signing keys not initialized").WriteError(w)
			return
		}
		httpx.WriteJSONCached(w, http.StatusOK, authsdk.JWKSResponse(keys.JWKS()), wellKnownCacheControl)
	}
}

// DiscoveryConfig is the server metadata that varies per deployment.
type DiscoveryConfig struct {
	Issuer    string
	Algorithm string
	Scopes    []string

	// Zero lifetimes report the service defaults.
	CodeTTL    time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DiscoveryHandler publishes OpenID provider metadata.
//
//	@Summary		OpenID Provider Configuration
//	@Description	Returns the endpoints and capabilities of this authorization server.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.DiscoveryDocument
//	@Router			/.well-known/openid-configuration [get]
func DiscoveryHandler(cfg DiscoveryConfig) http.HandlerFunc {
	doc := Discovery(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSONCached(w, http.StatusOK, doc, wellKnownCacheControl)
	}
}

// Discovery builds the metadata document for cfg.
func Discovery(cfg DiscoveryConfig) authsdk.DiscoveryDocument {
	iss := cfg.Issuer
	return authsdk.DiscoveryDocument{
		Issuer:                                     iss,
		AuthorizationEndpoint:                      iss + "/authorize",
		TokenEndpoint:                              iss + "/token",
		PushedAuthorizationRequestEndpoint:         iss + "/par",
		IntrospectionEndpoint:                      iss + "/introspect",
		UserinfoEndpoint:                           iss + "/userinfo",
		JWKSURI:                                    iss + "/.well-known/jwks.json",
		RequirePushedAuthorizationRequests:         true,
		ResponseTypesSupported:                     []string{"code"},
		ResponseModesSupported:                     []string{"query"},
		GrantTypesSupported:                        []string{"authorization_code", "refresh_token"},
		SubjectTypesSupported:                      []string{"public"},
		ScopesSupported:                            cfg.Scopes,
		CodeChallengeMethodsSupported:              []string{"S256"},
		TokenEndpointAuthMethodsSupported:          []string{"tls_client_auth", "private_key_jwt"},
		TokenEndpointAuthSigningAlgValuesSupported: jwtx.SupportedAlgorithms,
		IDTokenSigningAlgValuesSupported:           []string{cfg.Algorithm},
		DPoPSigningAlgValuesSupported:              jwtx.SupportedAlgorithms,
		TLSClientCertificateBoundAccessTokens:      false,
		AuthorizationResponseIssParameterSupported: true,
		ClaimsParameterSupported:                   true,
	}
}

// FAPIConfigurationHandler publishes the FAPI 2.0 profile metadata.
//
//	@Summary		FAPI Configuration
//	@Description	Returns the FAPI 2.0 profile, sender-constraining methods and token lifetimes enforced by this server.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.FAPIConfiguration
//	@Router			/.well-known/fapi-configuration [get]
func FAPIConfigurationHandler(cfg DiscoveryConfig) http.HandlerFunc {
	doc := FAPIConfiguration(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSONCached(w, http.StatusOK, doc, wellKnownCacheControl)
	}
}

// FAPIConfiguration builds the FAPI profile document for cfg.
func FAPIConfiguration(cfg DiscoveryConfig) authsdk.FAPIConfiguration {
	d := Discovery(cfg)
	return authsdk.FAPIConfiguration{
		Issuer:                                     d.Issuer,
		FAPIProfile:                                "2.0",
		FAPISecurityProfile:                        "baseline",
		RequirePushedAuthorizationRequests:         d.RequirePushedAuthorizationRequests,
		RequirePKCE:                                true,
		PKCECodeChallengeMethodsSupported:          d.CodeChallengeMethodsSupported,
		TokenEndpointAuthMethodsSupported:          d.TokenEndpointAuthMethodsSupported,
		TokenEndpointAuthSigningAlgValuesSupported: d.TokenEndpointAuthSigningAlgValuesSupported,
		TokenBindingMethodsSupported:               []string{"DPoP"},
		TLSClientCertificateBoundAccessTokens:      d.TLSClientCertificateBoundAccessTokens,
		DPoPSigningAlgValuesSupported:              d.DPoPSigningAlgValuesSupported,
		IDTokenSigningAlgValuesSupported:           d.IDTokenSigningAlgValuesSupported,
		GrantTypesSupported:                        d.GrantTypesSupported,
		ResponseTypesSupported:                     d.ResponseTypesSupported,
		ResponseModesSupported:                     d.ResponseModesSupported,
		ScopesSupported:                            d.ScopesSupported,
		MaxAuthorizationCodeLifetime:               seconds(cfg.CodeTTL, domain.AuthorizationCodeTTL),
		MaxAccessTokenLifetime:                     seconds(cfg.AccessTTL, jwtx.DefaultAccessTokenTTL),
		MaxRefreshTokenLifetime:                    seconds(cfg.RefreshTTL, jwtx.DefaultRefreshTokenTTL),
	}
}

func seconds(d, fallback time.Duration) int {
	if d <= 0 {
		d = fallback
	}
	return int(d / time.Second)
}
