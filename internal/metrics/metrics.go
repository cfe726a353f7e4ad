package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics service.
type Metrics struct {
	// Tracker fetch metrics
	FetchRequests *prometheus.CounterVec
	FetchRetries  prometheus.Counter
	LimiterWait   prometheus.Histogram
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter

	// Correlation run metrics
	Runs              *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	RecordsProcessed  prometheus.Counter
	RecordsExcluded   prometheus.Counter
	RecordsUnresolved prometheus.Counter

	// HTTP metrics
	RateLimitHits *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		// Tracker fetch metrics
		FetchRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_requests_total",
				Help:      "Tracker lookups by outcome",
			},
			[]string{"outcome"}, // ok, absent, failed, rate_limited
		),
		FetchRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Retried tracker lookups",
			},
		),
		LimiterWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "limiter_wait_seconds",
				Help:      "Time spent waiting for rate limiter admission",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 3, 10, 30, 60},
			},
		),
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_cache_hits_total",
				Help:      "Revenue lookups served from cache",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_cache_misses_total",
				Help:      "Revenue lookups missing the cache",
			},
		),

		// Correlation run metrics
		Runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correlation_runs_total",
				Help:      "Correlation runs by status",
			},
			[]string{"status"}, // complete, incomplete
		),
		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "correlation_run_seconds",
				Help:      "Correlation run duration in seconds",
				Buckets:   []float64{0.1, 1, 5, 15, 60, 180, 600},
			},
		),
		RecordsProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_processed_total",
				Help:      "Spend records accepted into correlation runs",
			},
		),
		RecordsExcluded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_excluded_total",
				Help:      "Spend records excluded as invalid",
			},
		),
		RecordsUnresolved: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_unresolved_total",
				Help:      "Records whose label matched no known owner",
			},
		),

		// HTTP metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Inbound rate limit rejections",
			},
			[]string{"path"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records one tracker lookup outcome.
func (m *Metrics) RecordFetch(outcome string) {
	m.FetchRequests.WithLabelValues(outcome).Inc()
}

// RecordRetry records a retried tracker lookup.
func (m *Metrics) RecordRetry() {
	m.FetchRetries.Inc()
}

// ObserveLimiterWait records time spent waiting for admission.
func (m *Metrics) ObserveLimiterWait(d time.Duration) {
	m.LimiterWait.Observe(d.Seconds())
}

// RecordCache records a cache hit or miss.
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordRun records a finished correlation run.
func (m *Metrics) RecordRun(status string, d time.Duration, processed, excluded, unresolved int) {
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	m.RecordsProcessed.Add(float64(processed))
	m.RecordsExcluded.Add(float64(excluded))
	m.RecordsUnresolved.Add(float64(unresolved))
}

// RecordRateLimitHit records an inbound rate limit rejection.
func (m *Metrics) RecordRateLimitHit(path string) {
	m.RateLimitHits.WithLabelValues(path).Inc()
}
