//go:build e2e

package authserver_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/authtest"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and flow helpers for authorization server end-to-end tests.
 */

const (
	testImageName = "fapiauth-test:latest"

	// issuer is what the server believes its own URL is. Requests are
	// rerouted to the mapped container port by hostTransport.
	issuer        = "http://localhost:8080"
	operatorToken = "test-operator-token-12345"
	clientID      = "tpp-e2e"
	clientKID     = "tpp-e2e-key"
	subject       = "alice"
)

// TestMain builds the image once for the whole suite and removes it after.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building authorization server image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up authorization server image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/authserver/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

// hostTransport sends every request to the container regardless of the
// issuer host in the URL, so assertion audiences and DPoP htu values match
// the configured issuer.
type hostTransport struct {
	host string
}

func (h hostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Host = h.host
	return http.DefaultTransport.RoundTrip(req)
}

type harness struct {
	t         *testing.T
	host      string
	clientKey *ecdsa.PrivateKey
}

// setupServer starts the server with a single private_key_jwt client and
// returns a harness for it.
func setupServer(t *testing.T, env map[string]string) *harness {
	t.Helper()
	ctx := context.Background()

	key := authtest.NewKey(t)
	registry := fmt.Sprintf(`clients:
  - client_id: %s
    client_name: E2E Third Party
    auth_method: private_key_jwt
    redirect_uris: [%q]
    scopes: [openid, profile, accounts]
    jwks: %s
`, clientID, authtest.RedirectURI, authtest.JWKS(t, clientKID, jwtx.AlgorithmES256, key.Public()))

	containerEnv := map[string]string{
		"AUTH_ISSUER":         issuer,
		"AUTH_ALGORITHM":      "ES256",
		"AUTH_OPERATOR_TOKEN": operatorToken,
		"AUTH_CLIENTS_FILE":   "/etc/fapiauth/clients.yaml",
		"ENV":                 "test",
		"LOG_LEVEL":           "info",
		"LOG_FORMAT":          "json",
		// Tests make many rapid requests from one address.
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
	for k, v := range env {
		containerEnv[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          containerEnv,
		Files: []testcontainers.ContainerFile{{
			Reader:            bytes.NewReader([]byte(registry)),
			ContainerFilePath: "/etc/fapiauth/clients.yaml",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForHTTP("/readyz").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return &harness{t: t, host: fmt.Sprintf("%s:%s", host, mappedPort.Port()), clientKey: key}
}

// client returns an SDK client authenticating with private_key_jwt.
func (h *harness) client() *authsdk.SDKClient {
	c := authsdk.NewSDKClient(issuer, clientID, authsdk.PrivateKeyJWT{
		Key: h.clientKey,
		Alg: jwtx.AlgorithmES256,
		KID: clientKID,
	})
	c.HTTPClient.Transport = hostTransport{host: h.host}
	return c
}

// authorize runs PAR and /authorize and returns the authorization code.
func (h *harness) authorize(c *authsdk.SDKClient, scopes ...string) string {
	h.t.Helper()
	ctx := context.Background()

	pushed, err := c.PushAuthorizationRequest(ctx, authsdk.AuthorizationRequest{
		RedirectURI: authtest.RedirectURI,
		Scopes:      scopes,
		State:       "e2e-state",
		Nonce:       "e2e-nonce",
	}.WithPKCE(authsdk.PKCEChallengeFromVerifier(authtest.Verifier)))
	require.NoError(h.t, err)
	require.Positive(h.t, pushed.ExpiresIn)

	res, err := c.Authorize(ctx, c.BuildAuthorizeURL(pushed.RequestURI, ""), map[string]string{
		"X-Authenticated-Subject": subject,
	})
	require.NoError(h.t, err)
	require.Equal(h.t, "e2e-state", res.State)
	return res.Code
}

func assertTokenResponse(t *testing.T, resp *authsdk.TokenResponse, tokenType string) {
	t.Helper()
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, tokenType, resp.TokenType)
	require.Positive(t, resp.ExpiresIn)
}
