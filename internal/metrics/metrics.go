// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "airlink"

// Metrics holds the counters recorded by the session core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BestEffort     *prometheus.CounterVec
	SessionsClosed *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	JoinsRejected  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New creates a registry with Go runtime collectors and the service counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		BestEffort: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_effort_total",
			Help:      "Best-effort side effects by operation and outcome.",
		}, []string{"op", "outcome"}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions closed by termination reason.",
		}, []string{"reason"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Outbox delivery attempts by final status.",
		}, []string{"status"}),
		JoinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_rejected_total",
			Help:      "Listener joins rejected by error kind.",
		}, []string{"kind"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BestEffort, m.SessionsClosed, m.Deliveries, m.JoinsRejected, m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBestEffort(op, outcome string) {
	if m == nil {
		return
	}
	m.BestEffort.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveSessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveJoinRejected(kind string) {
	if m == nil {
		return
	}
	m.JoinsRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, code).Inc()
}
