// Package metrics exposes Prometheus collectors for the cache subsystem.
//
// Counters mirror pkg/telemetry's in-process snapshot so that an operator
// who scrapes Prometheus sees the same numbers pkg/health uses to decide
// whether the cache is degraded.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHitsTotal counts cache hits.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stash_cache_hits_total",
			Help: "Total number of query-result cache hits",
		},
	)

	// CacheMissesTotal counts cache misses.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stash_cache_misses_total",
			Help: "Total number of query-result cache misses",
		},
	)

	// CacheErrorsTotal counts store/codec errors, labeled by kind.
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stash_cache_errors_total",
			Help: "Total number of cache errors by kind",
		},
		[]string{"kind"},
	)

	// CacheSkipsTotal counts admission skips, labeled by reason.
	CacheSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stash_cache_skips_total",
			Help: "Total number of queries skipped for caching, by reason",
		},
		[]string{"reason"},
	)

	// CacheInvalidationsTotal counts invalidations, labeled by table (by key
	// for a single-key invalidation, "*" for a full flush).
	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stash_cache_invalidations_total",
			Help: "Total number of cache invalidations, by table",
		},
		[]string{"table"},
	)

	// CacheBytesTotal is a gauge of the approximate bytes currently cached.
	CacheBytesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stash_cache_bytes_total",
			Help: "Approximate number of bytes currently held in the cache",
		},
	)

	// CacheEntriesTotal is a gauge of the number of entries currently cached.
	CacheEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stash_cache_entries_total",
			Help: "Number of entries currently held in the cache",
		},
	)

	// CommandDuration observes end-to-end interceptor latency.
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stash_command_duration_seconds",
			Help:    "Time spent in the command interceptor pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheErrorsTotal,
		CacheSkipsTotal,
		CacheInvalidationsTotal,
		CacheBytesTotal,
		CacheEntriesTotal,
		CommandDuration,
	)
}

// Handler returns the Prometheus HTTP handler for a metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
