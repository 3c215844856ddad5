// Package metrics exposes Prometheus instrumentation for the REST gateway
// and the realtime session.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finvasia/internal/gateway"
)

const namespace = "finvasia"

// Compile-time interface check.
var _ gateway.Observer = (*Metrics)(nil)

// Metrics owns a private registry so tests and embedders do not collide with
// the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionEvents   *prometheus.CounterVec
	orderUpdates    *prometheus.CounterVec
	reconnects      prometheus.Counter
	sessionState    *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "REST requests by route and outcome.",
		}, []string{"route", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "REST request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Realtime session events by name.",
		}, []string{"event"}),
		orderUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_updates_total",
			Help:      "Order updates received by status.",
		}, []string{"status"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reconnects_total",
			Help:      "Reconnect attempts made by the stream supervisor.",
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the session's current state, 0 otherwise.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.sessionEvents,
		m.orderUpdates,
		m.reconnects,
		m.sessionState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one gateway request.
func (m *Metrics) ObserveRequest(route string, d time.Duration, err error) {
	m.requests.WithLabelValues(route, outcome(err)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SessionEvent counts an emitted session event.
func (m *Metrics) SessionEvent(name string) {
	m.sessionEvents.WithLabelValues(name).Inc()
}

// OrderUpdate counts an order update by its broker status.
func (m *Metrics) OrderUpdate(status string) {
	if status == "" {
		status = "unknown"
	}
	m.orderUpdates.WithLabelValues(status).Inc()
}

// Reconnect counts a reconnect attempt.
func (m *Metrics) Reconnect() {
	m.reconnects.Inc()
}

// SetSessionState marks state as current and clears every state in all.
func (m *Metrics) SetSessionState(state string, all []string) {
	for _, s := range all {
		m.sessionState.WithLabelValues(s).Set(0)
	}
	m.sessionState.WithLabelValues(state).Set(1)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return "api_error"
	}
	var netErr *gateway.NetworkError
	if errors.As(err, &netErr) {
		return "network_error"
	}
	return "error"
}
