package authsdk

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCEChallenge(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCEChallenge()
	require.NoError(t, err)
	require.NotNil(t, pkce)

	require.NotEmpty(t, pkce.Verifier)
	require.Equal(t, "S256", pkce.Method)

	hash := sha256.Sum256([]byte(pkce.Verifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(hash[:]), pkce.Challenge)
}

func TestPKCEChallengeFromVerifier_RFC7636Vector(t *testing.T) {
	t.Parallel()

	pkce := PKCEChallengeFromVerifier("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", pkce.Challenge)
}

func TestBuildAuthorizeURL(t *testing.T) {
	t.Parallel()

	client := NewSDKClient("https://auth.example.com/", "test-client", TLSClientAuth{})

	t.Run("request_uri only", func(t *testing.T) {
		u, err := url.Parse(client.BuildAuthorizeURL(RequestURIPrefix+"abc", ""))
		require.NoError(t, err)
		require.Equal(t, "/authorize", u.Path)
		require.Equal(t, "test-client", u.Query().Get("client_id"))
		require.Equal(t, RequestURIPrefix+"abc", u.Query().Get("request_uri"))
		require.False(t, u.Query().Has("state"))
	})

	t.Run("with state", func(t *testing.T) {
		u, err := url.Parse(client.BuildAuthorizeURL(RequestURIPrefix+"abc", "xyz"))
		require.NoError(t, err)
		require.Equal(t, "xyz", u.Query().Get("state"))
	})

	t.Run("inline request", func(t *testing.T) {
		maxAge := 0
		req := AuthorizationRequest{
			RedirectURI: "https://app.example.com/callback",
			Scopes:      []string{"openid", "accounts"},
			State:       "state123",
			Nonce:       "n-1",
			Purpose:     "accountOpening",
			MaxAge:      &maxAge,
		}.WithPKCE(PKCEChallengeFromVerifier("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

		u, err := url.Parse(client.BuildInlineAuthorizeURL(req))
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, "code", q.Get("response_type"))
		require.Equal(t, "test-client", q.Get("client_id"))
		require.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
		require.Equal(t, "openid accounts", q.Get("scope"))
		require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", q.Get("code_challenge"))
		require.Equal(t, "S256", q.Get("code_challenge_method"))
		require.Equal(t, "accountOpening", q.Get("purpose"))
		require.Equal(t, "0", q.Get("max_age"))
		require.False(t, q.Has("prompt"))
	})
}

func TestParseAuthorizationRedirect(t *testing.T) {
	t.Parallel()

	resp, err := ParseAuthorizationRedirect("https://app.example.com/cb?code=abc&state=s1")
	require.NoError(t, err)
	require.Equal(t, "abc", resp.Code)
	require.Equal(t, "s1", resp.State)

	_, err = ParseAuthorizationRedirect("https://app.example.com/cb?error=invalid_request&error_description=nope&state=s1")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = ParseAuthorizationRedirect("https://app.example.com/cb?state=s1")
	require.Error(t, err)

	_, err = ParseAuthorizationRedirect("")
	require.Error(t, err)
}

func TestAuthorize_DoesNotFollowRedirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "alice", r.Header.Get("X-Authenticated-Subject"))
		http.Redirect(w, r, "https://app.example.com/cb?code=c1&state="+r.URL.Query().Get("state"), http.StatusFound)
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL, "test-client", TLSClientAuth{})
	resp, err := client.Authorize(t.Context(), client.BuildAuthorizeURL(RequestURIPrefix+"x", "st"), map[string]string{
		"X-Authenticated-Subject": "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "c1", resp.Code)
	require.Equal(t, "st", resp.State)
}

func TestAuthorize_JSONError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrInvalidRequestURI.WriteError(w)
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL, "test-client", TLSClientAuth{})
	_, err := client.Authorize(t.Context(), client.BuildAuthorizeURL(RequestURIPrefix+"x", ""), nil)
	require.ErrorIs(t, err, ErrInvalidRequestURI)

	var oauthErr *OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, http.StatusBadRequest, oauthErr.StatusCode)
	require.False(t, oauthErr.Timestamp.IsZero())
}
