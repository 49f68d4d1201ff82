//go:build e2e

package authserver_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/fapiauth/internal/auth/authtest"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuthorizationCodeFlow walks PAR, authorize, token, introspection,
// userinfo and refresh rotation against the container.
func TestAuthorizationCodeFlow(t *testing.T) {
	h := setupServer(t, nil)
	ctx := context.Background()
	c := h.client()

	code := h.authorize(c, "openid", "profile", "accounts")
	tokens, err := c.ExchangeCode(ctx, code, authtest.RedirectURI, authtest.Verifier)
	require.NoError(t, err)
	assertTokenResponse(t, tokens, "Bearer")
	require.NotEmpty(t, tokens.IDToken)

	res, err := c.Introspect(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, subject, res.Sub)
	assert.Equal(t, clientID, res.ClientID)
	assert.Equal(t, issuer, res.Iss)

	session := c.NewSession(tokens)
	info, err := session.UserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, subject, info.Sub)
	assert.Equal(t, subject, info.Name)

	refreshed, err := c.RefreshGrant(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assertTokenResponse(t, refreshed, "Bearer")
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	_, err = c.RefreshGrant(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)
}

func TestAuthorizationCodeFlow_DPoP(t *testing.T) {
	h := setupServer(t, nil)
	ctx := context.Background()

	signer, err := authsdk.NewDPoPSigner(authtest.NewKey(t), jwtx.AlgorithmES256)
	require.NoError(t, err)
	c := h.client().WithDPoP(signer)

	tokens, err := c.ExchangeCode(ctx, h.authorize(c, "openid", "accounts"), authtest.RedirectURI, authtest.Verifier)
	require.NoError(t, err)
	assertTokenResponse(t, tokens, "DPoP")

	res, err := c.Introspect(ctx, tokens.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, res.Cnf)
	assert.Equal(t, signer.JKT(), res.Cnf.JKT)

	info, err := c.NewSession(tokens).UserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, subject, info.Sub)

	// Presenting the bound token without its proof fails.
	plain := h.client()
	_, err = plain.NewSession(&authsdk.TokenResponse{AccessToken: tokens.AccessToken, TokenType: "Bearer"}).UserInfo(ctx)
	require.Error(t, err)
}

func TestSecurity_CodeReplayRevokesTokens(t *testing.T) {
	h := setupServer(t, nil)
	ctx := context.Background()
	c := h.client()

	code := h.authorize(c, "accounts")
	tokens, err := c.ExchangeCode(ctx, code, authtest.RedirectURI, authtest.Verifier)
	require.NoError(t, err)

	_, err = c.ExchangeCode(ctx, code, authtest.RedirectURI, authtest.Verifier)
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)

	res, err := c.Introspect(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.False(t, res.Active)

	_, err = c.RefreshGrant(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)
}

func TestSecurity_RejectsUnknownClientKey(t *testing.T) {
	h := setupServer(t, nil)
	c := h.client()
	c.Auth = authsdk.PrivateKeyJWT{Key: authtest.NewKey(t), Alg: jwtx.AlgorithmES256, KID: clientKID}

	_, err := c.PushAuthorizationRequest(context.Background(), authsdk.AuthorizationRequest{
		RedirectURI: authtest.RedirectURI,
		Scopes:      []string{"accounts"},
	}.WithPKCE(authsdk.PKCEChallengeFromVerifier(authtest.Verifier)))
	require.ErrorIs(t, err, authsdk.ErrInvalidClient)
}
