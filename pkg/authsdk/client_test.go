package authsdk

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestNewClientAssertion_VerifiesWithJWTX(t *testing.T) {
	t.Parallel()

	key := newECKey(t)
	now := time.Now()
	assertion, err := NewClientAssertion(key, jwtx.AlgorithmES256, "k1", "client-a", "https://auth.example.com/token", 0, now)
	require.NoError(t, err)

	keys, err := jwtx.NewClientKeySetFromKey("k1", key.Public())
	require.NoError(t, err)

	claims, err := jwtx.VerifyClientAssertion(assertion, keys, jwtx.AssertionOptions{
		ClientID: "client-a",
		Audience: "https://auth.example.com/token",
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, "client-a", claims.Issuer)
	require.NotEmpty(t, claims.ID)
	require.Equal(t, now.Add(time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestDPoPSigner_ProofVerifies(t *testing.T) {
	t.Parallel()

	signer, err := NewDPoPSigner(newECKey(t), jwtx.AlgorithmES256)
	require.NoError(t, err)

	now := time.Now()
	proof, err := signer.Proof(http.MethodGet, "https://auth.example.com/userinfo", "access-token", now)
	require.NoError(t, err)

	verified, err := jwtx.VerifyDPoPProof(proof, jwtx.DPoPOptions{
		Method:      http.MethodGet,
		URL:         "https://auth.example.com/userinfo",
		Now:         now,
		AccessToken: "access-token",
	})
	require.NoError(t, err)
	require.Equal(t, signer.JKT(), verified.JKT)
}

// fakeTokenServer answers /token with a fresh access token on every call and
// records what the client sent.
type fakeTokenServer struct {
	calls    atomic.Int32
	lastForm atomic.Value
	lastDPoP atomic.Value
}

func (f *fakeTokenServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		n := f.calls.Add(1)
		f.lastForm.Store(r.PostForm)
		f.lastDPoP.Store(r.Header.Get("DPoP"))

		typ := "Bearer"
		if r.Header.Get("DPoP") != "" {
			typ = "DPoP"
		}
		httpx.WriteJSON(w, http.StatusOK, TokenResponse{
			AccessToken:  "at-" + string(rune('0'+n)),
			TokenType:    typ,
			ExpiresIn:    900,
			RefreshToken: "rt-" + string(rune('0'+n)),
			Scope:        "openid accounts",
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		scheme, token := httpx.AuthorizationScheme(r)
		if scheme == "DPoP" && r.Header.Get("DPoP") == "" {
			ErrInvalidToken.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, UserInfoResponse{Sub: token})
	})
	return mux
}

func TestExchangeCode_SendsAssertionAndDPoP(t *testing.T) {
	t.Parallel()

	fake := &fakeTokenServer{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	dpop, err := NewDPoPSigner(newECKey(t), jwtx.AlgorithmES256)
	require.NoError(t, err)

	client := NewSDKClient(srv.URL, "client-a", PrivateKeyJWT{Key: newECKey(t), Alg: jwtx.AlgorithmES256}).WithDPoP(dpop)

	session, err := client.AuthenticateWithCode(t.Context(), "code-1", "https://app.example.com/cb", "verifier")
	require.NoError(t, err)
	require.Equal(t, "DPoP", session.TokenType())
	require.True(t, session.HasAllScopes("openid", "accounts"))

	form := fake.lastForm.Load().(url.Values)
	require.Equal(t, []string{"authorization_code"}, form["grant_type"])
	require.Equal(t, []string{jwtx.ClientAssertionType}, form["client_assertion_type"])
	require.NotEmpty(t, form["client_assertion"])
	require.Equal(t, []string{"verifier"}, form["code_verifier"])
	require.NotEmpty(t, fake.lastDPoP.Load())

	info, err := session.UserInfo(t.Context())
	require.NoError(t, err)
	require.Equal(t, "at-1", info.Sub)
}

func TestSession_RefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	fake := &fakeTokenServer{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	now := time.Now()
	client := NewSDKClient(srv.URL, "client-a", TLSClientAuth{})
	client.Now = func() time.Time { return now }

	session, err := client.AuthenticateWithCode(t.Context(), "code-1", "https://app.example.com/cb", "verifier")
	require.NoError(t, err)
	require.Equal(t, "rt-1", session.RefreshToken())

	now = now.Add(15 * time.Minute)

	info, err := session.UserInfo(t.Context())
	require.NoError(t, err)
	require.Equal(t, "at-2", info.Sub)
	require.Equal(t, "rt-2", session.RefreshToken())
	require.Equal(t, int32(2), fake.calls.Load())

	form := fake.lastForm.Load().(url.Values)
	require.Equal(t, []string{"refresh_token"}, form["grant_type"])
	require.Equal(t, []string{"rt-1"}, form["refresh_token"])
	require.Equal(t, []string{"client-a"}, form["client_id"])
}

func TestIntrospect_InactiveIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/introspect", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]bool{"active": false}))
	}))
	defer srv.Close()

	resp, err := NewSDKClient(srv.URL, "client-a", TLSClientAuth{}).Introspect(t.Context(), "unknown")
	require.NoError(t, err)
	require.False(t, resp.Active)
}
