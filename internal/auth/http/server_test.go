package http_test

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/authtest"
	"github.com/aussiebroadwan/fapiauth/internal/auth/directory"
	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	authhttp "github.com/aussiebroadwan/fapiauth/internal/auth/http"
	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const operatorToken = "operator-secret"

// server runs the full router over the memory store behind httptest. The
// issuer is the test server URL so SDK-built proofs and assertions line up.
type server struct {
	t        *testing.T
	srv      *httptest.Server
	issuer   string
	clock    *clockx.Fake
	store    *memory.Store
	keys     *jwtx.KeyManager
	rotation *service.KeyRotationService
	metrics  *metrics.Metrics

	clientKey *ecdsa.PrivateKey
	client    domain.Client
}

type serverOption func(*serverOptions)

type serverOptions struct {
	skipKeyInit bool
	clients     []domain.Client
}

func withoutKeys() serverOption { return func(o *serverOptions) { o.skipKeyInit = true } }

func withClient(c domain.Client) serverOption {
	return func(o *serverOptions) { o.clients = append(o.clients, c) }
}

func newServer(t *testing.T, opts ...serverOption) *server {
	t.Helper()
	ctx := context.Background()

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	s := &server{
		t:         t,
		srv:       srv,
		issuer:    srv.URL,
		clock:     clockx.NewFake(authtest.Epoch),
		store:     memory.NewStore(),
		metrics:   metrics.New(),
		clientKey: authtest.NewKey(t),
	}
	replay := memory.NewReplayCache(s.clock)

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmES256, Clock: s.clock})
	require.NoError(t, err)
	if !o.skipKeyInit {
		require.NoError(t, keys.Init(ctx))
	}
	s.keys = keys
	s.metrics.ObservePublishedKeys(func() int { return len(keys.JWKS().Keys) })

	s.client = authtest.JWTClient(t, "tpp-1", s.clientKey)
	s.client.Scopes = []string{"openid", "profile", "accounts"}
	dir := directory.New(s.store.Clients())
	require.NoError(t, dir.Sync(ctx, append([]domain.Client{s.client}, o.clients...)))

	dpop := &service.DPoPVerifier{Replay: replay, Clock: s.clock, Issuer: s.issuer}
	par := &service.PARService{Store: s.store, Clock: s.clock, Metrics: s.metrics}
	s.rotation = &service.KeyRotationService{Keys: keys, Clock: s.clock, Metrics: s.metrics, Interval: 24 * time.Hour}

	router := authhttp.NewRouter(authhttp.Config{
		Issuer:        s.issuer,
		Algorithm:     jwtx.AlgorithmES256,
		BuildVersion:  "test",
		Scopes:        []string{"openid", "profile", "accounts"},
		OperatorToken: operatorToken,
		CertHeader:    "X-Client-Cert",
	}, s.store, keys, s.metrics, slogx.Discard())
	router.ClientAuthenticator = &service.ClientAuthenticator{
		Directory: dir,
		Replay:    replay,
		Clock:     s.clock,
		Metrics:   s.metrics,
		Audience:  s.issuer + service.TokenPath,
	}
	router.PARService = par
	router.AuthorizeService = &service.AuthorizeService{
		Store:     s.store,
		Directory: dir,
		PAR:       par,
		Clock:     s.clock,
		Issuer:    s.issuer,
	}
	router.TokenService = &service.TokenService{
		Store:   s.store,
		Keys:    keys,
		DPoP:    dpop,
		Clock:   s.clock,
		Metrics: s.metrics,
		Issuer:  s.issuer,
	}
	router.AccessValidator = &service.AccessTokenValidator{
		Store:    s.store,
		Verifier: jwtx.NewVerifier(keys, s.issuer, s.clock),
		DPoP:     dpop,
		Clock:    s.clock,
	}
	router.KeyRotationService = s.rotation
	router.ApplyRoutes()
	handler = router

	return s
}

// sdk returns a private_key_jwt client for tpp-1 on the fake clock.
func (s *server) sdk() *authsdk.SDKClient {
	c := authsdk.NewSDKClient(s.issuer, s.client.ID, authsdk.PrivateKeyJWT{
		Key: s.clientKey,
		Alg: jwtx.AlgorithmES256,
		KID: s.client.ID + "-key",
	})
	c.Now = s.clock.Now
	return c
}

func request(scope string) authsdk.AuthorizationRequest {
	return authsdk.AuthorizationRequest{
		RedirectURI: authtest.RedirectURI,
		Scopes:      []string{scope},
		State:       "af0ifjsldkj",
		Nonce:       "n-0S6_WzA2Mj",
	}.WithPKCE(authsdk.PKCEChallengeFromVerifier(authtest.Verifier))
}

// code runs PAR and /authorize for alice and returns the issued code.
func (s *server) code(c *authsdk.SDKClient, scope string) string {
	s.t.Helper()
	ctx := context.Background()

	pushed, err := c.PushAuthorizationRequest(ctx, request(scope))
	require.NoError(s.t, err)

	res, err := c.Authorize(ctx, c.BuildAuthorizeURL(pushed.RequestURI, ""), map[string]string{
		authhttp.DefaultSubjectHeader: "alice",
	})
	require.NoError(s.t, err)
	require.Equal(s.t, "af0ifjsldkj", res.State)
	return res.Code
}

func (s *server) do(req *http.Request) *http.Response {
	s.t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *server) get(path string, header http.Header) *http.Response {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.issuer+path, nil)
	require.NoError(s.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return s.do(req)
}
