// Package telemetry implements Stash's counters, event sink, and health
// probe (spec.md §4.K). Counters are plain atomics mirroring the pattern
// amitdeshmukh/graphjin uses in its RedisCache's CacheMetrics: a handful of
// atomic.Int64 fields plus a TakeSnapshot method that copies them out under no
// lock (atomics need none). Counters are additionally mirrored onto
// pkg/metrics' Prometheus collectors as a side effect of each Record* call.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/health"
	"github.com/cuemby/stash/pkg/log"
	"github.com/cuemby/stash/pkg/metrics"
	"github.com/cuemby/stash/pkg/resultset"
)

// Snapshot is a point-in-time copy of every counter, taken without holding
// any lock (each field is read via its own atomic load).
type Snapshot struct {
	Hits                int64
	Misses              int64
	Errors              int64
	Skips               int64
	InvalidationsTotal  int64
	BytesCached         int64
	HitRatePercent      float64
	InvalidationsByTable map[string]int64
}

// Recorder accumulates cache telemetry and exposes it as Prometheus
// collectors (pkg/metrics), an event sink (config.Options.OnEvent), and a
// pkg/health.Checker for operator health probes.
type Recorder struct {
	opts *config.Options

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
	skips  atomic.Int64
	bytes  atomic.Int64

	invalidationsTotal atomic.Int64

	mu                  sync.Mutex
	invalidationsByTable map[string]int64

	probe Prober
}

// Prober is the narrow slice of pkg/store.Store the health check needs: a
// single Get against a known-absent key. Any store.Store satisfies this.
type Prober interface {
	Get(ctx context.Context, key string) (*resultset.Set, bool, error)
}

// New returns a Recorder that emits events through opts.OnEvent and probes
// store for health checks (store may be attached later via SetProbe if it
// isn't constructed yet at telemetry setup time).
func New(opts *config.Options, probe Prober) *Recorder {
	return &Recorder{
		opts:                 opts,
		invalidationsByTable: map[string]int64{},
		probe:                probe,
	}
}

// SetProbe attaches the store used by Check. Needed because the store and
// the recorder are frequently constructed in opposite dependency order
// (both store variants also take a Recorder, to record admits and
// evictions).
func (r *Recorder) SetProbe(probe Prober) { r.probe = probe }

func (r *Recorder) RecordHit(key string) {
	r.hits.Add(1)
	metrics.CacheHitsTotal.Inc()
	r.emit(config.Event{Kind: config.EventCacheHit, Key: key})
}

func (r *Recorder) RecordMiss(key string) {
	r.misses.Add(1)
	metrics.CacheMissesTotal.Inc()
	r.emit(config.Event{Kind: config.EventCacheMiss, Key: key})
}

func (r *Recorder) RecordAdmit(key string, rowCount int, sizeBytes int64, ttl time.Duration) {
	r.bytes.Add(sizeBytes)
	metrics.CacheBytesTotal.Set(float64(r.bytes.Load()))
	metrics.CacheEntriesTotal.Inc()
	r.emit(config.Event{Kind: config.EventQueryResultCached, Key: key, RowCount: rowCount, SizeBytes: sizeBytes, TTL: ttl})
}

// RecordEviction accounts for bytes leaving the cache through TTL, size
// pressure, or invalidation, independent of which event ultimately fires.
func (r *Recorder) RecordEviction(sizeBytes int64) {
	r.bytes.Add(-sizeBytes)
	if r.bytes.Load() < 0 {
		r.bytes.Store(0)
	}
	metrics.CacheBytesTotal.Set(float64(r.bytes.Load()))
	metrics.CacheEntriesTotal.Dec()
}

func (r *Recorder) RecordError(kind string, err error) {
	r.errors.Add(1)
	metrics.CacheErrorsTotal.WithLabelValues(kind).Inc()
	log.WithComponent("telemetry").Warn().Str("kind", kind).Err(err).Msg("cache error")
	r.emit(config.Event{Kind: config.EventCacheError, Err: err})
}

func (r *Recorder) RecordFallback(key string, err error) {
	r.errors.Add(1)
	metrics.CacheErrorsTotal.WithLabelValues("fallback").Inc()
	log.WithComponent("telemetry").Warn().Str("key", key).Err(err).Msg("cache store error, falling back to database")
	r.emit(config.Event{Kind: config.EventCacheFallbackToDb, Key: key, Err: err})
}

func (r *Recorder) RecordSkipTooManyRows(key string, rowCount int) {
	r.skips.Add(1)
	metrics.CacheSkipsTotal.WithLabelValues("too-many-rows").Inc()
	r.emit(config.Event{Kind: config.EventSkippedTooManyRows, Key: key, RowCount: rowCount})
}

func (r *Recorder) RecordSkipTooLarge(key string, sizeBytes int64) {
	r.skips.Add(1)
	metrics.CacheSkipsTotal.WithLabelValues("too-large").Inc()
	r.emit(config.Event{Kind: config.EventSkippedTooLarge, Key: key, SizeBytes: sizeBytes})
}

func (r *Recorder) RecordSkipExcludedTable(key string, table string) {
	r.skips.Add(1)
	metrics.CacheSkipsTotal.WithLabelValues("excluded-table").Inc()
	r.emit(config.Event{Kind: config.EventSkippedExcludedTable, Key: key, Tables: []string{table}})
}

func (r *Recorder) RecordInvalidation(tables []string) {
	r.mu.Lock()
	for _, t := range tables {
		r.invalidationsByTable[t]++
		metrics.CacheInvalidationsTotal.WithLabelValues(t).Inc()
	}
	r.mu.Unlock()
	r.invalidationsTotal.Add(int64(len(tables)))
	r.emit(config.Event{Kind: config.EventCacheInvalidated, Tables: tables})
}

// RecordKeyInvalidation records a single invalidated cache entry for a
// caller that targets one exact key rather than a set of tag-indexed
// tables (e.g. pkg/invalidate.API.InvalidateKey).
func (r *Recorder) RecordKeyInvalidation(key string) {
	r.invalidationsTotal.Add(1)
	metrics.CacheInvalidationsTotal.WithLabelValues(key).Inc()
	r.emit(config.Event{Kind: config.EventCacheInvalidated, Key: key})
}

// RecordFlush records a whole-cache invalidation (pkg/invalidate.API.InvalidateAll)
// as a single invalidation event carrying no particular key or table.
func (r *Recorder) RecordFlush() {
	r.invalidationsTotal.Add(1)
	metrics.CacheInvalidationsTotal.WithLabelValues("*").Inc()
	r.emit(config.Event{Kind: config.EventCacheInvalidated})
}

func (r *Recorder) emit(ev config.Event) {
	if r.opts != nil {
		r.opts.Emit(ev)
	}
}

// TakeSnapshot returns a point-in-time copy of every counter.
func (r *Recorder) TakeSnapshot() Snapshot {
	hits := r.hits.Load()
	misses := r.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = 100 * float64(hits) / float64(total)
	}

	r.mu.Lock()
	byTable := make(map[string]int64, len(r.invalidationsByTable))
	for k, v := range r.invalidationsByTable {
		byTable[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		Hits:                 hits,
		Misses:               misses,
		Errors:               r.errors.Load(),
		Skips:                r.skips.Load(),
		InvalidationsTotal:   r.invalidationsTotal.Load(),
		BytesCached:          r.bytes.Load(),
		HitRatePercent:       hitRate,
		InvalidationsByTable: byTable,
	}
}

// probeKey is a fingerprint no real command can ever produce (fingerprints
// are "<prefix><64 lowercase hex chars>"; this is deliberately the wrong
// length and alphabet to collide with one).
const probeKey = "stash-health-probe-key-never-cached"

var _ health.Checker = (*Recorder)(nil)

// Name implements health.Checker.
func (r *Recorder) Name() string { return "stash-cache" }

// Check implements health.Checker per spec.md §4.K: probe the store with a
// known-absent key; on a probe error, Unhealthy. On success, Healthy iff
// the hit rate is at or above the configured minimum and at least one
// request has been observed; below the minimum is Degraded; with no
// requests observed yet there is nothing to be degraded about, so the
// result is Healthy with an explanatory note.
func (r *Recorder) Check(ctx context.Context) health.Result {
	start := time.Now()

	if r.probe != nil {
		if _, _, err := r.probe.Get(ctx, probeKey); err != nil {
			return health.Result{
				Level:     health.Unhealthy,
				Message:   "store probe failed: " + err.Error(),
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}
	}

	snap := r.TakeSnapshot()
	total := snap.Hits + snap.Misses
	minRate := 50.0
	if r.opts != nil && r.opts.MinimumHitRatePercent > 0 {
		minRate = r.opts.MinimumHitRatePercent
	}

	if total == 0 {
		return health.Result{
			Level:     health.Healthy,
			Message:   "no requests observed yet",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if snap.HitRatePercent < minRate {
		return health.Result{
			Level:     health.Degraded,
			Message:   "hit rate below configured minimum",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return health.Result{
		Level:     health.Healthy,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
