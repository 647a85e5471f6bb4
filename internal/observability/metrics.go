// Package observability provides Prometheus metrics for the tracker.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// Each instance owns its registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Holdings      prometheus.Gauge
	TrackedTokens prometheus.Gauge
	LastSuccess   prometheus.Gauge

	// Upstream metrics
	HoldingsFailures   prometheus.Counter
	EnrichmentFailures prometheus.Counter

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Database metrics
	StoreQueryDuration *prometheus.HistogramVec
	StoreQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "milestone_tracker"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Total number of polling cycles by result",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Polling cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45, 90},
		}),
		Holdings: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "holdings",
			Help:      "Number of holdings above the minimum amount in the last cycle",
		}),
		TrackedTokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tracked_tokens",
			Help:      "Number of tokens with market data",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful polling cycle",
		}),

		HoldingsFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "holdings_failures_total",
			Help:      "Total number of failed wallet holdings fetches",
		}),
		EnrichmentFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dexscreener",
			Name:      "enrichment_failures_total",
			Help:      "Total number of failed market data lookups",
		}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of notifications by kind and result",
		}, []string{"kind", "result"}),

		StoreQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Milestone store query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StoreQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of milestone store query errors",
		}, []string{"operation"}),
	}
}

// Registry returns the registry all metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HoldingsFailed increments the holdings failure counter.
func (m *Metrics) HoldingsFailed() {
	m.HoldingsFailures.Inc()
}

// EnrichmentFailed increments the enrichment failure counter.
func (m *Metrics) EnrichmentFailed() {
	m.EnrichmentFailures.Inc()
}

// NotificationSent records a dispatched notification.
func (m *Metrics) NotificationSent(kind string, err error) {
	m.NotificationsTotal.WithLabelValues(kind, resultLabel(err)).Inc()
}

// CycleFinished records a completed polling cycle.
func (m *Metrics) CycleFinished(result string, d time.Duration, holdings, tracked int) {
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.Holdings.Set(float64(holdings))
	m.TrackedTokens.Set(float64(tracked))
	if result == "ok" {
		m.LastSuccess.SetToCurrentTime()
	}
}

// ObserveQuery records milestone store query metrics.
func (m *Metrics) ObserveQuery(operation string, d time.Duration, err error) {
	m.StoreQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
