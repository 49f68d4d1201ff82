package service_test

import (
	"context"
	"crypto/ecdsa"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/authtest"
	"github.com/aussiebroadwan/fapiauth/internal/auth/directory"
	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const tokenURL = authtest.Issuer + "/token"

// fixture wires every service over the memory store and a fake clock.
type fixture struct {
	t       *testing.T
	clock   *clockx.Fake
	store   *memory.Store
	replay  *memory.ReplayCache
	keys    *jwtx.KeyManager
	metrics *metrics.Metrics

	dir       *directory.Directory
	auth      *service.ClientAuthenticator
	dpop      *service.DPoPVerifier
	par       *service.PARService
	authorize *service.AuthorizeService
	tokens    *service.TokenService
	access    *service.AccessTokenValidator
	rotation  *service.KeyRotationService

	clientKey *ecdsa.PrivateKey
	client    domain.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		t:         t,
		clock:     clockx.NewFake(authtest.Epoch),
		store:     memory.NewStore(),
		metrics:   metrics.New(),
		clientKey: authtest.NewKey(t),
	}
	f.replay = memory.NewReplayCache(f.clock)

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Clock:     f.clock,
	})
	require.NoError(t, err)
	require.NoError(t, keys.Init(ctx))
	f.keys = keys

	f.client = authtest.JWTClient(t, "tpp-1", f.clientKey)
	f.client.Scopes = []string{"openid", "profile", "accounts", "payments"}
	require.NoError(t, f.store.Clients().UpsertClient(ctx, f.client))

	f.dir = directory.New(f.store.Clients())
	f.auth = &service.ClientAuthenticator{
		Directory: f.dir,
		Replay:    f.replay,
		Clock:     f.clock,
		Metrics:   f.metrics,
		Audience:  tokenURL,
	}
	f.dpop = &service.DPoPVerifier{Replay: f.replay, Clock: f.clock, Issuer: authtest.Issuer}
	f.par = &service.PARService{Store: f.store, Clock: f.clock, Metrics: f.metrics}
	f.authorize = &service.AuthorizeService{
		Store:     f.store,
		Directory: f.dir,
		PAR:       f.par,
		Clock:     f.clock,
		Issuer:    authtest.Issuer,
	}
	f.tokens = &service.TokenService{
		Store:   f.store,
		Keys:    f.keys,
		DPoP:    f.dpop,
		Clock:   f.clock,
		Metrics: f.metrics,
		Issuer:  authtest.Issuer,
	}
	f.access = &service.AccessTokenValidator{
		Store:    f.store,
		Verifier: jwtx.NewVerifier(f.keys, authtest.Issuer, f.clock),
		DPoP:     f.dpop,
		Clock:    f.clock,
	}
	f.rotation = &service.KeyRotationService{
		Keys:     f.keys,
		Clock:    f.clock,
		Metrics:  f.metrics,
		Interval: 24 * time.Hour,
	}
	return f
}

func (f *fixture) identity() service.ClientIdentity {
	return service.ClientIdentity{
		ClientID: f.client.ID,
		Method:   domain.AuthMethodPrivateKeyJWT,
		Client:   f.client,
	}
}

func (f *fixture) assertion(audience string) string {
	f.t.Helper()
	a, err := authsdk.NewClientAssertion(f.clientKey, jwtx.AlgorithmES256, f.client.ID+"-key",
		f.client.ID, audience, time.Minute, f.clock.Now())
	require.NoError(f.t, err)
	return a
}

func authorizationRequest(scope string) service.AuthorizationRequest {
	return service.AuthorizationRequest{
		ResponseType:        "code",
		RedirectURI:         authtest.RedirectURI,
		Scope:               scope,
		State:               "af0ifjsldkj",
		Nonce:               "n-0S6_WzA2Mj",
		CodeChallenge:       authtest.Challenge,
		CodeChallengeMethod: "S256",
	}
}

// code pushes a request and authorizes it, returning the issued code.
func (f *fixture) code(scope string) string {
	f.t.Helper()
	ctx := context.Background()
	pushed, err := f.par.Push(ctx, f.identity(), authorizationRequest(scope))
	require.NoError(f.t, err)

	res, err := f.authorize.Authorize(ctx, service.AuthorizeRequest{
		AuthorizationRequest: service.AuthorizationRequest{
			ClientID:   f.client.ID,
			RequestURI: pushed.RequestURI,
		},
		Subject: "alice",
	})
	require.NoError(f.t, err)
	return res.Code
}

func (f *fixture) exchange(code string) (domain.TokenSet, error) {
	return f.tokens.ExchangeCode(context.Background(), f.identity(), service.CodeGrant{
		Code:         code,
		RedirectURI:  authtest.RedirectURI,
		CodeVerifier: authtest.Verifier,
	})
}

func (f *fixture) dpopSigner() *authsdk.DPoPSigner {
	f.t.Helper()
	d, err := authsdk.NewDPoPSigner(authtest.NewKey(f.t), jwtx.AlgorithmES256)
	require.NoError(f.t, err)
	return d
}

func (f *fixture) proof(d *authsdk.DPoPSigner, method, path, accessToken string) string {
	f.t.Helper()
	p, err := d.Proof(method, authtest.Issuer+path, accessToken, f.clock.Now())
	require.NoError(f.t, err)
	return p
}

func queryOf(t *testing.T, location string) url.Values {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	return u.Query()
}
