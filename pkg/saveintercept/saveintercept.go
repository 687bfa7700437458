// Package saveintercept implements the write-side invalidation protocol
// from spec.md §4.I: pre-save capture of the tables a save touches,
// post-save-success invalidation, and post-save-failure discard.
//
// Go has no GC-backed weak map, so the "weak association from an ORM
// session to the table set captured at SavingChanges time" in spec.md §3
// becomes an explicit, mutex-guarded map keyed by session id. Sessions are
// released either by reaching a terminal save event (PostSaveSuccess /
// PostSaveFailure both remove their slot) or, for an adapter that cannot
// guarantee a terminal event fires (e.g. a save that times out), by an
// explicit Forget call — the non-GC substitute for the session token being
// collected.
package saveintercept

import (
	"context"
	"sort"
	"sync"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/orm"
	"github.com/cuemby/stash/pkg/store"
	"github.com/cuemby/stash/pkg/telemetry"
)

// PendingSlot is the per-session invalidation slot captured at pre-save
// time (spec.md §3).
type PendingSlot struct {
	Tables []string
}

// SaveInterceptor is the write-side cache invalidation coordinator.
type SaveInterceptor struct {
	opts      *config.Options
	store     store.Store
	telemetry *telemetry.Recorder

	mu      sync.Mutex
	pending map[string]*PendingSlot
}

// New returns a SaveInterceptor invalidating st on a successful save.
func New(opts *config.Options, st store.Store, rec *telemetry.Recorder) *SaveInterceptor {
	return &SaveInterceptor{
		opts:      opts,
		store:     st,
		telemetry: rec,
		pending:   map[string]*PendingSlot{},
	}
}

// PreSave walks tracker's change set and resolves every Added, Modified,
// or Deleted entry (and its owned-entity navigations) to its table name
// via model, then attaches the lowercased, deduplicated table set to
// sessionID's pending-invalidation slot. Capturing must happen here,
// before the save commits, because an ORM's state transitions after
// commit (e.g. Added -> Unchanged) erase the information needed to know
// which tables were touched.
func (s *SaveInterceptor) PreSave(sessionID string, tracker orm.ChangeTracker, model orm.Model) {
	tableSet := map[string]struct{}{}

	for _, tracked := range tracker.TrackedEntities() {
		switch tracked.State {
		case orm.Added, orm.Modified, orm.Deleted:
		default:
			continue
		}

		entityType, ok := model.FindEntityType(tracked.Entity)
		if !ok {
			continue
		}
		if entityType.TableName != "" {
			tableSet[toLower(entityType.TableName)] = struct{}{}
		}
		for _, nav := range entityType.Navigations {
			if nav.IsOwned && nav.TableName != "" {
				tableSet[toLower(nav.TableName)] = struct{}{}
			}
		}
	}

	if len(tableSet) == 0 {
		return
	}

	tables := make([]string, 0, len(tableSet))
	for t := range tableSet {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	s.mu.Lock()
	s.pending[sessionID] = &PendingSlot{Tables: tables}
	s.mu.Unlock()
}

// PostSaveSuccess retrieves and removes sessionID's pending slot and, if
// present, invalidates its tables on the cache store. Invalidation must
// happen only after commit succeeds; doing it earlier would let a
// concurrent reader re-cache results that are about to become stale.
func (s *SaveInterceptor) PostSaveSuccess(ctx context.Context, sessionID string) error {
	slot := s.takePending(sessionID)
	if slot == nil {
		return nil
	}

	if err := s.store.InvalidateByTags(ctx, slot.Tables); err != nil {
		return err
	}
	if s.telemetry != nil {
		s.telemetry.RecordInvalidation(slot.Tables)
	}
	return nil
}

// PostSaveFailure retrieves and removes sessionID's pending slot without
// touching the cache. No event fires.
func (s *SaveInterceptor) PostSaveFailure(sessionID string) {
	s.takePending(sessionID)
}

// Forget releases sessionID's pending slot, if any, without invalidating
// anything. Use this when an adapter cannot guarantee PostSaveSuccess or
// PostSaveFailure will fire for a given session (e.g. the save timed out
// or the session was abandoned).
func (s *SaveInterceptor) Forget(sessionID string) {
	s.takePending(sessionID)
}

func (s *SaveInterceptor) takePending(sessionID string) *PendingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.pending[sessionID]
	delete(s.pending, sessionID)
	return slot
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
