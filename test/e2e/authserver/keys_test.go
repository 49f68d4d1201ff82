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

func TestHealthAndDiscovery(t *testing.T) {
	h := setupServer(t, nil)
	ctx := context.Background()
	c := h.client()

	live, err := c.GetLiveness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", live.Status)

	ready, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Status)

	doc, err := c.GetDiscovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, issuer, doc.Issuer)
	assert.Equal(t, issuer+"/par", doc.PushedAuthorizationRequestEndpoint)
	assert.True(t, doc.RequirePushedAuthorizationRequests)
	assert.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
}

// TestKeyRotation rotates through the operator endpoint and checks that
// tokens signed by the previous key keep verifying during the grace period.
func TestKeyRotation(t *testing.T) {
	h := setupServer(t, nil)
	ctx := context.Background()
	c := h.client()

	jwks, err := c.GetJWKS(ctx)
	require.NoError(t, err)
	before := jwtx.JWKS(*jwks).KIDs()
	require.Len(t, before, 1)

	tokens, err := c.ExchangeCode(ctx, h.authorize(c, "accounts"), authtest.RedirectURI, authtest.Verifier)
	require.NoError(t, err)

	_, err = c.RotateKeys(ctx, "wrong-token")
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)

	rotated, err := c.RotateKeys(ctx, operatorToken)
	require.NoError(t, err)
	assert.Equal(t, before[0], rotated.PreviousKID)
	assert.NotEqual(t, before[0], rotated.NewKID)

	jwks, err = c.GetJWKS(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{rotated.NewKID, before[0]}, jwtx.JWKS(*jwks).KIDs())

	info, err := c.KeysInfo(ctx, operatorToken)
	require.NoError(t, err)
	assert.Equal(t, rotated.NewKID, info.CurrentKID)
	assert.Equal(t, 2, info.PublishedKeys)

	res, err := c.Introspect(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.True(t, res.Active)
}
