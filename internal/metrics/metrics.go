// Package metrics holds the Prometheus collectors for the access-control layer.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lm_mcp"

type Metrics struct {
	registry        *prometheus.Registry
	tokensIssued    prometheus.Counter
	verifyFailures  *prometheus.CounterVec
	authentications *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	toolDenials     *prometheus.CounterVec
	sessionsSwept   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued at the token endpoint.",
		}),
		verifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verification_failures_total",
			Help:      "Bearer token verification failures by reason.",
		}, []string{"reason"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Request authentication outcomes by method.",
		}, []string{"method", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_refreshes_total",
			Help:      "Upstream credential refresh attempts by outcome.",
		}, []string{"outcome"}),
		toolDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_denials_total",
			Help:      "Tool calls denied for insufficient scope.",
		}, []string{"tool"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the periodic sweep.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.verifyFailures,
		m.authentications,
		m.refreshes,
		m.toolDenials,
		m.sessionsSwept,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *Metrics) VerificationFailed(reason string) {
	if m == nil {
		return
	}
	m.verifyFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Authenticated(method, outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) Refreshed(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ToolDenied(tool string) {
	if m == nil {
		return
	}
	m.toolDenials.WithLabelValues(tool).Inc()
}

func (m *Metrics) SessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}
