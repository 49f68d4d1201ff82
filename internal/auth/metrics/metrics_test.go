package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New()

	m.TokenIssued("authorization_code", "DPoP")
	m.TokenIssued("authorization_code", "DPoP")
	m.GrantFailed("refresh_token", "invalid_grant")
	m.ClientAuthenticated("private_key_jwt", true)
	m.ClientAuthenticated("tls_client_auth", false)
	m.PushedRequest(true)
	m.KeyRotated("manual", true)
	m.Swept("authorization_codes", 3)
	m.Swept("authorization_codes", 0)

	published := 2
	m.ObservePublishedKeys(func() int { return published })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	require.Contains(t, text, `fapiauth_tokens_issued_total{grant_type="authorization_code",token_type="DPoP"} 2`)
	require.Contains(t, text, `fapiauth_grant_failures_total{error="invalid_grant",grant_type="refresh_token"} 1`)
	require.Contains(t, text, `fapiauth_client_authentications_total{method="tls_client_auth",result="failure"} 1`)
	require.Contains(t, text, `fapiauth_sweep_deleted_total{kind="authorization_codes"} 3`)
	require.Contains(t, text, `fapiauth_jwks_published_keys 2`)
	require.Contains(t, text, "go_goroutines")

	expected := `
# HELP fapiauth_key_rotations_total Signing key rotations, by trigger and result.
# TYPE fapiauth_key_rotations_total counter
fapiauth_key_rotations_total{result="success",trigger="manual"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "fapiauth_key_rotations_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.TokenIssued("authorization_code", "Bearer")
		m.GrantFailed("authorization_code", "invalid_grant")
		m.ClientAuthenticated("private_key_jwt", false)
		m.PushedRequest(false)
		m.KeyRotated("scheduled", false)
		m.Swept("pushed_requests", 1)
		m.ObservePublishedKeys(func() int { return 1 })
	})
}
