// Package metrics exposes the auth server's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fapiauth"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	tokensIssued  *prometheus.CounterVec
	grantFailures *prometheus.CounterVec
	clientAuth    *prometheus.CounterVec
	parRequests   *prometheus.CounterVec
	keyRotations  *prometheus.CounterVec
	sweepDeleted  *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Token sets issued, by grant type and token type.",
		}, []string{"grant_type", "token_type"}),
		grantFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_failures_total",
			Help:      "Refused token requests, by grant type and error code.",
		}, []string{"grant_type", "error"}),
		clientAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_authentications_total",
			Help:      "Client authentication attempts, by method and result.",
		}, []string{"method", "result"}),
		parRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushed_authorization_requests_total",
			Help:      "Pushed authorization requests, by result.",
		}, []string{"result"}),
		keyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Signing key rotations, by trigger and result.",
		}, []string{"trigger", "result"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Expired artifacts removed by housekeeping, by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.grantFailures,
		m.clientAuth,
		m.parRequests,
		m.keyRotations,
		m.sweepDeleted,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePublishedKeys registers a gauge reading the JWKS size on scrape.
func (m *Metrics) ObservePublishedKeys(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jwks_published_keys",
		Help:      "Keys currently published in the JWK Set.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) TokenIssued(grantType, tokenType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(grantType, tokenType).Inc()
}

func (m *Metrics) GrantFailed(grantType, code string) {
	if m == nil {
		return
	}
	m.grantFailures.WithLabelValues(grantType, code).Inc()
}

func (m *Metrics) ClientAuthenticated(method string, ok bool) {
	if m == nil {
		return
	}
	m.clientAuth.WithLabelValues(method, result(ok)).Inc()
}

func (m *Metrics) PushedRequest(ok bool) {
	if m == nil {
		return
	}
	m.parRequests.WithLabelValues(result(ok)).Inc()
}

// KeyRotated counts a rotation; trigger is "scheduled" or "manual".
func (m *Metrics) KeyRotated(trigger string, ok bool) {
	if m == nil {
		return
	}
	m.keyRotations.WithLabelValues(trigger, result(ok)).Inc()
}

func (m *Metrics) Swept(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepDeleted.WithLabelValues(kind).Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
