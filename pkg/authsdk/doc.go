/*
Package authsdk is a client for the fapiauth authorization server.

# Overview

SDKClient represents one registered client. It authenticates itself on
every call to /par, /token and /introspect with a ClientAuth:

  - TLSClientAuth: the certificate is configured on HTTPClient's transport
    and only client_id goes in the form.
  - PrivateKeyJWT: a fresh signed assertion (iss = sub = client_id,
    aud = token endpoint, random jti) is attached to every request.

A DPoPSigner may be attached with WithDPoP. Token requests then carry a
DPoP proof and the issued tokens are bound to that key.

# Authorization Code Flow

	client := authsdk.NewSDKClient("https://auth.example.com", "client-a",
		authsdk.PrivateKeyJWT{Key: key, Alg: "ES256", KID: "k1"})

	pkce, _ := authsdk.GeneratePKCEChallenge()
	par, err := client.PushAuthorizationRequest(ctx, authsdk.AuthorizationRequest{
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"openid", "accounts"},
		State:       state,
	}.WithPKCE(pkce))

	// Send the user agent to this URL. The redirect back carries the code.
	authorizeURL := client.BuildAuthorizeURL(par.RequestURI, state)

	session, err := client.AuthenticateWithCode(ctx, code, redirectURI, pkce.Verifier)

# Sessions

A Session keeps the access, refresh and ID tokens from one grant. Its
methods refresh the access token shortly before expiry; refresh tokens
rotate on every use. DPoP-bound tokens are presented with the DPoP scheme
and a proof carrying the ath claim.

	info, err := session.UserInfo(ctx)

Sessions are safe for concurrent use.

# Errors

Server errors come back as *OAuth2Error and match the predefined values
with errors.Is:

	if errors.Is(err, authsdk.ErrInvalidGrant) {
		// start the flow again
	}
*/
package authsdk
