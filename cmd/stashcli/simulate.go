package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/intercept"
	"github.com/cuemby/stash/pkg/orm"
	"github.com/cuemby/stash/pkg/saveintercept"
	"github.com/cuemby/stash/pkg/store/local"
	"github.com/cuemby/stash/pkg/telemetry"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted miss/hit/invalidate cycle against an in-process store",
	Long: `Simulate drives a local.Store through a representative life cycle:
a cache miss, a subsequent hit, a save that invalidates the table, and a
third query that misses again. It is meant for demoing the interceptor
and save-interceptor wiring without a real ORM or database attached.`,
	RunE: runSimulate,
}

type demoRows struct {
	names  []string
	values [][]any
	cursor int
}

func (d *demoRows) Read(ctx context.Context) (bool, error) {
	if d.cursor+1 >= len(d.values) {
		return false, nil
	}
	d.cursor++
	return true, nil
}
func (d *demoRows) FieldCount() int             { return len(d.names) }
func (d *demoRows) GetName(i int) string        { return d.names[i] }
func (d *demoRows) GetDataTypeName(i int) string { return "text" }
func (d *demoRows) GetFieldType(i int) string    { return "string" }
func (d *demoRows) IsNull(i int) bool            { return d.values[d.cursor][i] == nil }
func (d *demoRows) GetValue(i int) any           { return d.values[d.cursor][i] }
func (d *demoRows) GetColumnSchema() ([]driverio.ColumnSchema, bool) { return nil, false }
func (d *demoRows) RecordsAffected() int64                          { return -1 }
func (d *demoRows) HasRows() bool                                   { return len(d.values) > 0 }
func (d *demoRows) Close() error                                    { return nil }

type demoProduct struct{ ID int }

type demoModel struct{}

func (demoModel) FindEntityType(entity any) (orm.EntityType, bool) {
	if _, ok := entity.(*demoProduct); ok {
		return orm.EntityType{TableName: "products"}, true
	}
	return orm.EntityType{}, false
}

type demoTracker struct{ entities []orm.TrackedEntity }

func (t demoTracker) TrackedEntities() []orm.TrackedEntity { return t.entities }

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	opts := config.Default()
	opts.CacheAllQueries = true

	st := local.New(0, opts.Now, nil)
	rec := telemetry.New(opts, st)
	ic := intercept.New(opts, st, rec)
	si := saveintercept.New(opts, st, rec)

	query := driverio.Command{Text: "SELECT id, name FROM Products"}
	sessionID := uuid.NewString()

	drain := func(r driverio.RowReader) int {
		n := 0
		for {
			ok, err := r.Read(ctx)
			if err != nil {
				fmt.Printf("read error: %v\n", err)
				return n
			}
			if !ok {
				break
			}
			n++
		}
		_ = r.Close()
		return n
	}

	run := func(label string) {
		execCtx, cached, hit, err := ic.Executing(ctx, query, false)
		if err != nil {
			fmt.Printf("%s: error: %v\n", label, err)
			return
		}
		if hit {
			n := drain(cached)
			fmt.Printf("%s: HIT  (%d rows replayed)\n", label, n)
			return
		}
		live := &demoRows{names: []string{"id", "name"}, values: [][]any{{1, "widget"}, {2, "gadget"}}, cursor: -1}
		wrapped, err := ic.Executed(ctx, execCtx, live)
		if err != nil {
			fmt.Printf("%s: error: %v\n", label, err)
			return
		}
		n := drain(wrapped)
		fmt.Printf("%s: MISS (%d rows captured and admitted)\n", label, n)
	}

	fmt.Printf("session: %s\n\n", sessionID)
	run("query 1")
	run("query 2")

	fmt.Println("\nsaving a modified product (session", sessionID, ")")
	si.PreSave(sessionID, demoTracker{entities: []orm.TrackedEntity{
		{Entity: &demoProduct{ID: 1}, State: orm.Modified},
	}}, demoModel{})
	if err := si.PostSaveSuccess(ctx, sessionID); err != nil {
		return fmt.Errorf("post-save invalidation failed: %v", err)
	}

	fmt.Println()
	run("query 3 (after invalidation)")

	snap := rec.TakeSnapshot()
	fmt.Printf("\nhits=%d misses=%d invalidations=%d hit-rate=%.1f%%\n",
		snap.Hits, snap.Misses, snap.InvalidationsTotal, snap.HitRatePercent)
	return nil
}
