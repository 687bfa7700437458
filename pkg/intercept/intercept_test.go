package intercept

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/store/local"
	"github.com/cuemby/stash/pkg/telemetry"
)

type fakeDriverReader struct {
	names  []string
	rows   [][]any
	cursor int
}

func (f *fakeDriverReader) Read(ctx context.Context) (bool, error) {
	if f.cursor+1 >= len(f.rows) {
		return false, nil
	}
	f.cursor++
	return true, nil
}
func (f *fakeDriverReader) FieldCount() int             { return len(f.names) }
func (f *fakeDriverReader) GetName(i int) string        { return f.names[i] }
func (f *fakeDriverReader) GetDataTypeName(i int) string { return "text" }
func (f *fakeDriverReader) GetFieldType(i int) string    { return "string" }
func (f *fakeDriverReader) IsNull(i int) bool            { return f.rows[f.cursor][i] == nil }
func (f *fakeDriverReader) GetValue(i int) any           { return f.rows[f.cursor][i] }
func (f *fakeDriverReader) GetColumnSchema() ([]driverio.ColumnSchema, bool) {
	return nil, false
}
func (f *fakeDriverReader) RecordsAffected() int64 { return -1 }
func (f *fakeDriverReader) HasRows() bool          { return len(f.rows) > 0 }
func (f *fakeDriverReader) Close() error           { return nil }

func newInterceptor(t *testing.T) *Interceptor {
	t.Helper()
	opts := config.Default()
	opts.CacheAllQueries = true
	st := local.New(0, nil, nil)
	rec := telemetry.New(opts, st)
	return New(opts, st, rec)
}

func drainAndClose(t *testing.T, r driverio.RowReader) int {
	t.Helper()
	count := 0
	for {
		ok, err := r.Read(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.NoError(t, r.Close())
	return count
}

func TestEndToEndMissThenHit(t *testing.T) {
	i := newInterceptor(t)
	ctx := context.Background()
	cmd := driverio.Command{Text: "SELECT * FROM Products"}

	execCtx, cachedReader, hit, err := i.Executing(ctx, cmd, false)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, cachedReader)

	live := &fakeDriverReader{names: []string{"name"}, rows: [][]any{{"a"}, {"b"}}, cursor: -1}
	wrapped, err := i.Executed(ctx, execCtx, live)
	require.NoError(t, err)
	count := drainAndClose(t, wrapped)
	assert.Equal(t, 2, count)

	execCtx2, cachedReader2, hit2, err := i.Executing(ctx, cmd, false)
	require.NoError(t, err)
	assert.True(t, hit2)
	require.NotNil(t, cachedReader2)
	count2 := drainAndClose(t, cachedReader2)
	assert.Equal(t, 2, count2)
	_ = execCtx2
}

func TestShouldCacheRejectsNonSelectText(t *testing.T) {
	i := newInterceptor(t)
	execCtx, _, hit, err := i.Executing(context.Background(), driverio.Command{Text: "UPDATE Products SET Price=1"}, false)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, execCtx.eligible)
}

func TestNoCacheDirectiveOverridesCacheAll(t *testing.T) {
	i := newInterceptor(t)
	cmd := driverio.Command{Text: "SELECT * FROM Products\n-- Stash:NoCache"}

	for n := 0; n < 2; n++ {
		execCtx, _, hit, err := i.Executing(context.Background(), cmd, false)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.False(t, execCtx.eligible)
	}
}

func TestTooManyRowsSkipsAdmissionButStillReturnsRows(t *testing.T) {
	opts := config.Default()
	opts.CacheAllQueries = true
	opts.MaxRowsPerQuery = 2
	st := local.New(0, nil, nil)
	i := New(opts, st, telemetry.New(opts, st))
	ctx := context.Background()
	cmd := driverio.Command{Text: "SELECT * FROM Products"}

	execCtx, _, hit, err := i.Executing(ctx, cmd, false)
	require.NoError(t, err)
	assert.False(t, hit)

	live := &fakeDriverReader{names: []string{"name"}, rows: [][]any{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}, cursor: -1}
	wrapped, err := i.Executed(ctx, execCtx, live)
	require.NoError(t, err)
	count := drainAndClose(t, wrapped)
	assert.Equal(t, 5, count, "the ORM must still see every drained row")

	execCtx2, _, hit2, err := i.Executing(ctx, cmd, false)
	require.NoError(t, err)
	assert.False(t, hit2, "an over-limit drain must not be admitted")
	_ = execCtx2
}

func TestUpstreamResultAlreadyProducedIsIneligible(t *testing.T) {
	i := newInterceptor(t)
	execCtx, _, hit, err := i.Executing(context.Background(), driverio.Command{Text: "SELECT 1"}, true)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, execCtx.eligible)
}

func TestOptInDirectiveCachesEvenWithoutCacheAll(t *testing.T) {
	opts := config.Default()
	opts.CacheAllQueries = false
	st := local.New(0, nil, nil)
	i := New(opts, st, telemetry.New(opts, st))
	ctx := context.Background()
	cmd := driverio.Command{Text: "SELECT * FROM Products\n-- Stash:TTL=300"}

	execCtx, _, hit, err := i.Executing(ctx, cmd, false)
	require.NoError(t, err)
	assert.False(t, hit)
	require.True(t, execCtx.eligible)
	assert.Equal(t, 300*1e9, float64(execCtx.absolute))
}

func TestExcludedTableUnderCacheAllIsIneligible(t *testing.T) {
	opts := config.Default()
	opts.CacheAllQueries = true
	opts.ExcludedTables["audit_log"] = struct{}{}
	st := local.New(0, nil, nil)
	i := New(opts, st, telemetry.New(opts, st))

	execCtx, _, hit, err := i.Executing(context.Background(), driverio.Command{Text: "SELECT * FROM audit_log"}, false)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, execCtx.eligible)
}

func TestExplainReportsEligibilityAndTagsWithoutTouchingStore(t *testing.T) {
	i := newInterceptor(t)

	exp := i.Explain(driverio.Command{Text: "SELECT * FROM Products"})
	assert.True(t, exp.Eligible)
	assert.Contains(t, exp.Tags, "products")
	assert.Equal(t, i.opts.DefaultAbsoluteExpiration, exp.Absolute)
}

func TestExplainReportsIneligibleForNonSelect(t *testing.T) {
	i := newInterceptor(t)

	exp := i.Explain(driverio.Command{Text: "DELETE FROM Products"})
	assert.False(t, exp.Eligible)
	assert.Nil(t, exp.Tags)
}
