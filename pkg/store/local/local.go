// Package local implements the G1 in-process cache store variant from
// spec.md §4.G: a fingerprint->entry map plus a bidirectional tag index,
// both backed by github.com/puzpuzpuz/xsync/v3's lock-free concurrent map
// (grounded in goliatone/go-repository-cache's dependency set — see
// DESIGN.md). A single critical section (mu) is the only path allowed to
// mutate both sides of the tag index atomically; the background TTL sweep
// and the eviction it drives touch only the lock-free maps themselves,
// matching the "exactly one path... may mutate both sides of the
// bidirectional index atomically" rule in spec.md §5.
package local

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/cuemby/stash/pkg/resultset"
	"github.com/cuemby/stash/pkg/store"
	"github.com/cuemby/stash/pkg/telemetry"
)

// tagSet is a lock-free set of fingerprints sharing one tag. It is mutated
// both inside Store's critical section and, without that lock, by the
// sweep's eviction path — the underlying xsync.MapOf is what makes the
// latter safe.
type tagSet struct {
	keys *xsync.MapOf[string, struct{}]
}

func newTagSet() *tagSet {
	return &tagSet{keys: xsync.NewMapOf[string, struct{}]()}
}

func (t *tagSet) add(key string)    { t.keys.Store(key, struct{}{}) }
func (t *tagSet) remove(key string) { t.keys.Delete(key) }
func (t *tagSet) size() int         { return t.keys.Size() }

func (t *tagSet) snapshot() []string {
	out := make([]string, 0, t.keys.Size())
	t.keys.Range(func(k string, _ struct{}) bool {
		out = append(out, k)
		return true
	})
	return out
}

// entry is one admitted cache row.
type entry struct {
	set              *resultset.Set
	generation       uint64
	tags             []string
	absoluteDeadline time.Time
	hasSliding       bool
	slidingWindow    time.Duration
	lastAccess       atomic.Int64 // unix nano
	sizeBytes        int64
}

func (e *entry) expired(now time.Time) bool {
	if !e.absoluteDeadline.IsZero() && now.After(e.absoluteDeadline) {
		return true
	}
	if e.hasSliding {
		last := time.Unix(0, e.lastAccess.Load())
		if now.After(last.Add(e.slidingWindow)) {
			return true
		}
	}
	return false
}

// Store is the G1 local cache store.
type Store struct {
	entries *xsync.MapOf[string, *entry]
	tags    *xsync.MapOf[string, *tagSet]

	mu         sync.Mutex // the single critical section; see package doc
	generation atomic.Uint64

	now func() time.Time

	telemetry *telemetry.Recorder

	sweepStop chan struct{}
	sweepOnce sync.Once
}

var _ store.Store = (*Store)(nil)

// New returns a Store with its background sweep goroutine running at the
// given interval; no sweep goroutine is started when sweepInterval <= 0.
// now defaults to time.Now if nil.
func New(sweepInterval time.Duration, now func() time.Time, rec *telemetry.Recorder) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		entries:   xsync.NewMapOf[string, *entry](),
		tags:      xsync.NewMapOf[string, *tagSet](),
		now:       now,
		telemetry: rec,
		sweepStop: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Close stops the background sweep goroutine. Safe to call multiple times.
func (s *Store) Close() {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

// sweepExpired runs the post-eviction path for every entry whose TTL has
// lapsed. It deliberately does not take mu: only lock-free operations on
// the index's inner maps are used here, per spec.md §5.
func (s *Store) sweepExpired() {
	now := s.now()
	var expiredKeys []string
	s.entries.Range(func(k string, e *entry) bool {
		if e.expired(now) {
			expiredKeys = append(expiredKeys, k)
		}
		return true
	})
	for _, k := range expiredKeys {
		s.evictLockFree(k)
	}
}

// evictLockFree removes key from the entries map and from every tag set it
// belongs to, using only lock-free map operations. This is the "post-
// eviction callback" the memory primitive would fire in the teacher's
// description of a real eviction-notifying cache.
func (s *Store) evictLockFree(key string) {
	e, ok := s.entries.LoadAndDelete(key)
	if !ok {
		return
	}
	for _, tag := range e.tags {
		if ts, ok := s.tags.Load(tag); ok {
			ts.remove(key)
		}
	}
	if s.telemetry != nil {
		s.telemetry.RecordEviction(e.sizeBytes)
	}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (*resultset.Set, bool, error) {
	e, ok := s.entries.Load(key)
	if !ok {
		return nil, false, nil
	}

	now := s.now()
	if e.generation < s.generation.Load() {
		s.entries.Delete(key)
		return nil, false, nil
	}
	if e.expired(now) {
		s.evictLockFree(key)
		return nil, false, nil
	}
	if e.hasSliding {
		e.lastAccess.Store(now.UnixNano())
	}
	return e.set, true, nil
}

// Set implements store.Store. Per spec.md §4.G's G1 normative steps: under
// the single critical section, remove any prior tag-index rows for key,
// install the new tag membership, then insert the entry.
func (s *Store) Set(ctx context.Context, key string, set *resultset.Set, absolute time.Duration, sliding time.Duration, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.entries.Load(key); ok {
		for _, tag := range prior.tags {
			if ts, ok := s.tags.Load(tag); ok {
				ts.remove(key)
			}
		}
	}

	now := s.now()
	e := &entry{
		set:        set,
		generation: s.generation.Load(),
		tags:       append([]string(nil), tags...),
		sizeBytes:  set.ApproxByteSize,
	}
	if absolute > 0 {
		e.absoluteDeadline = now.Add(absolute)
	}
	if sliding > 0 {
		e.hasSliding = true
		e.slidingWindow = sliding
		e.lastAccess.Store(now.UnixNano())
	}

	for _, tag := range tags {
		ts, _ := s.tags.LoadOrStore(tag, newTagSet())
		ts.add(key)
	}

	s.entries.Store(key, e)
	return nil
}

// InvalidateByTags implements store.Store. Per spec.md §4.G: takes the
// critical section, removes each tag from the index, collects the union of
// referenced keys, removes them from the entries map, and cleans their
// cross-references in other tags' sets.
func (s *Store) InvalidateByTags(ctx context.Context, tagsToInvalidate []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := map[string]struct{}{}
	for _, tag := range tagsToInvalidate {
		ts, ok := s.tags.LoadAndDelete(tag)
		if !ok {
			continue
		}
		for _, key := range ts.snapshot() {
			affected[key] = struct{}{}
		}
	}

	for key := range affected {
		e, ok := s.entries.LoadAndDelete(key)
		if !ok {
			continue
		}
		for _, tag := range e.tags {
			if ts, ok := s.tags.Load(tag); ok {
				ts.remove(key)
			}
		}
		if s.telemetry != nil {
			s.telemetry.RecordEviction(e.sizeBytes)
		}
	}
	return nil
}

// InvalidateKey implements store.Store.
func (s *Store) InvalidateKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.LoadAndDelete(key)
	if !ok {
		return nil
	}
	for _, tag := range e.tags {
		if ts, ok := s.tags.Load(tag); ok {
			ts.remove(key)
		}
	}
	if s.telemetry != nil {
		s.telemetry.RecordEviction(e.sizeBytes)
	}
	return nil
}

// InvalidateAll implements store.Store: bumps the generation counter and
// clears the tag index. No per-key sweep is required; stale entries are
// discovered on their next Get (spec.md §4.G).
//
// The tags field itself is never reassigned here: evictLockFree reads it
// from sweepExpired and Get without holding mu, so swapping in a fresh map
// would race against those reads. Clearing the existing map's entries in
// place keeps the field's pointer value stable for the store's lifetime.
func (s *Store) InvalidateAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation.Add(1)

	var allTags []string
	s.tags.Range(func(tag string, _ *tagSet) bool {
		allTags = append(allTags, tag)
		return true
	})
	for _, tag := range allTags {
		s.tags.Delete(tag)
	}
	return nil
}
