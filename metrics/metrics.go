// Package metrics holds the Prometheus collectors for the service. Each
// Metrics value owns its registry so multiple instances can coexist in
// tests. All recording helpers are nil-safe: a nil *Metrics no-ops, so
// library users run unmetered without guard clauses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEvicted prometheus.Counter
	SessionsExpired prometheus.Counter

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram
	HopsPerTurn  prometheus.Histogram

	// Tool metrics
	ToolCallsTotal *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec

	// Orchestration metrics
	HandoffsTotal  *prometheus.CounterVec
	TokensStreamed prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "paymesh_sessions_active",
				Help: "Number of sessions currently held by the registry",
			},
		),
		SessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paymesh_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paymesh_sessions_evicted_total",
				Help: "Total number of sessions evicted at capacity",
			},
		),
		SessionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paymesh_sessions_expired_total",
				Help: "Total number of sessions expired past the idle timeout",
			},
		),

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paymesh_turns_total",
				Help: "Total number of turns by terminal status",
			},
			[]string{"status"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paymesh_turn_duration_seconds",
				Help:    "Duration of turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		HopsPerTurn: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paymesh_hops_per_turn",
				Help:    "Agent hops taken per turn",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 12, 15},
			},
		),

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paymesh_tool_calls_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paymesh_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		HandoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paymesh_handoffs_total",
				Help: "Total number of control handoffs between roles",
			},
			[]string{"from", "to"},
		),
		TokensStreamed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paymesh_tokens_streamed_total",
				Help: "Total number of streamed token events emitted",
			},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsCreated)
	m.registry.MustRegister(m.SessionsEvicted)
	m.registry.MustRegister(m.SessionsExpired)

	m.registry.MustRegister(m.TurnsTotal)
	m.registry.MustRegister(m.TurnDuration)
	m.registry.MustRegister(m.HopsPerTurn)

	m.registry.MustRegister(m.ToolCallsTotal)
	m.registry.MustRegister(m.ToolDuration)

	m.registry.MustRegister(m.HandoffsTotal)
	m.registry.MustRegister(m.TokensStreamed)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionCreated records a session creation and the new occupancy.
func (m *Metrics) SessionCreated(active int) {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Set(float64(active))
}

// SessionEvicted records a capacity eviction and the new occupancy.
func (m *Metrics) SessionEvicted(active int) {
	if m == nil {
		return
	}
	m.SessionsEvicted.Inc()
	m.SessionsActive.Set(float64(active))
}

// SessionExpired records idle expiries and the new occupancy.
func (m *Metrics) SessionExpired(count, active int) {
	if m == nil {
		return
	}
	m.SessionsExpired.Add(float64(count))
	m.SessionsActive.Set(float64(active))
}

// SessionRemoved records a forced deletion's effect on occupancy.
func (m *Metrics) SessionRemoved(active int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(active))
}

// TurnCompleted records one finished turn.
func (m *Metrics) TurnCompleted(status string, seconds float64, hops int) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(status).Inc()
	m.TurnDuration.Observe(seconds)
	m.HopsPerTurn.Observe(float64(hops))
}

// ToolCallObserved records one tool invocation.
func (m *Metrics) ToolCallObserved(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}

// HandoffObserved records one control transition.
func (m *Metrics) HandoffObserved(from, to string) {
	if m == nil {
		return
	}
	m.HandoffsTotal.WithLabelValues(from, to).Inc()
}

// TokenStreamed records one streamed token event.
func (m *Metrics) TokenStreamed() {
	if m == nil {
		return
	}
	m.TokensStreamed.Inc()
}
