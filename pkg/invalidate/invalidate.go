// Package invalidate implements the manual invalidation API from
// spec.md §4.J: application code can evict by table name, by entity type
// (resolved through the same pkg/orm.Model used by pkg/saveintercept), by
// exact cache key, or flush everything.
package invalidate

import (
	"context"

	"github.com/cuemby/stash/pkg/orm"
	"github.com/cuemby/stash/pkg/store"
	"github.com/cuemby/stash/pkg/telemetry"
)

// API is the manual invalidation surface an application holds onto
// alongside its Stash-wrapped connection.
type API struct {
	store     store.Store
	telemetry *telemetry.Recorder
}

// New returns an API invalidating st.
func New(st store.Store, rec *telemetry.Recorder) *API {
	return &API{store: st, telemetry: rec}
}

// InvalidateTables evicts every cache entry tagged with any of names.
// Table names are matched case-insensitively, mirroring how pkg/tables
// extracts them from SQL text.
func (a *API) InvalidateTables(ctx context.Context, names ...string) error {
	tables := make([]string, len(names))
	for i, n := range names {
		tables[i] = toLower(n)
	}
	if err := a.store.InvalidateByTags(ctx, tables); err != nil {
		return err
	}
	if a.telemetry != nil {
		a.telemetry.RecordInvalidation(tables)
	}
	return nil
}

// InvalidateEntities evicts every cache entry tagged with the table of any
// entityType model resolves, along with each entity type's owned
// navigation tables.
func (a *API) InvalidateEntities(ctx context.Context, model orm.Model, entityTypes ...any) error {
	tableSet := map[string]struct{}{}
	for _, et := range entityTypes {
		entityType, ok := model.FindEntityType(et)
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
		return nil
	}
	tables := make([]string, 0, len(tableSet))
	for t := range tableSet {
		tables = append(tables, t)
	}

	if err := a.store.InvalidateByTags(ctx, tables); err != nil {
		return err
	}
	if a.telemetry != nil {
		a.telemetry.RecordInvalidation(tables)
	}
	return nil
}

// InvalidateKey evicts the single entry stored under fingerprint.
func (a *API) InvalidateKey(ctx context.Context, fingerprint string) error {
	if err := a.store.InvalidateKey(ctx, fingerprint); err != nil {
		return err
	}
	if a.telemetry != nil {
		a.telemetry.RecordKeyInvalidation(fingerprint)
	}
	return nil
}

// InvalidateAll flushes the entire cache.
func (a *API) InvalidateAll(ctx context.Context) error {
	if err := a.store.InvalidateAll(ctx); err != nil {
		return err
	}
	if a.telemetry != nil {
		a.telemetry.RecordFlush()
	}
	return nil
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
