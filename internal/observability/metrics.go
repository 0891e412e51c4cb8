// Package observability provides Prometheus metrics for monitoring.
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
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Recompute metrics
	RecomputeRuns     *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram
	RatioEntries      prometheus.Gauge
	TradesDiscarded   *prometheus.CounterVec

	// Query metrics
	Queries *prometheus.CounterVec

	// Ingestion metrics
	LimiterWait  prometheus.Histogram
	Extractions  *prometheus.CounterVec
	PostsHandled prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "appraiser"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecomputeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "runs_total",
			Help:      "Total number of ratio recomputation runs by result",
		}, []string{"result"}),
		RecomputeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "duration_seconds",
			Help:      "Duration of ratio recomputation runs",
			Buckets:   prometheus.DefBuckets,
		}),
		RatioEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "ratio_entries",
			Help:      "Number of directed ratio entries written by the last successful run",
		}),
		TradesDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "trades_discarded_total",
			Help:      "Ledger trades skipped during recomputation by reason",
		}, []string{"reason"}),

		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Query service calls by operation and result",
		}, []string{"operation", "result"}),

		LimiterWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "limiter_wait_seconds",
			Help:      "Time callers spent blocked in the call limiter",
			Buckets:   []float64{0, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "extractions_total",
			Help:      "Extraction calls by result",
		}, []string{"result"}),
		PostsHandled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "posts_total",
			Help:      "Posts received from feeds",
		}),
	}
}

// Handler returns the HTTP handler exposing this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRecompute records one recomputation run.
func (m *Metrics) ObserveRecompute(result string, entries int, took time.Duration) {
	if m == nil {
		return
	}
	m.RecomputeRuns.WithLabelValues(result).Inc()
	m.RecomputeDuration.Observe(took.Seconds())
	if result == "success" {
		m.RatioEntries.Set(float64(entries))
	}
}

// IncDiscarded counts one trade dropped during recomputation.
func (m *Metrics) IncDiscarded(reason string) {
	if m == nil {
		return
	}
	m.TradesDiscarded.WithLabelValues(reason).Inc()
}

// ObserveQuery counts one query service call.
func (m *Metrics) ObserveQuery(operation, result string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(operation, result).Inc()
}

// ObserveLimiterWait records time spent blocked before an admitted call.
func (m *Metrics) ObserveLimiterWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LimiterWait.Observe(d.Seconds())
}

// ObserveExtraction counts one extraction call.
func (m *Metrics) ObserveExtraction(result string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(result).Inc()
}

// IncPosts counts one post received from a feed.
func (m *Metrics) IncPosts() {
	if m == nil {
		return
	}
	m.PostsHandled.Inc()
}
