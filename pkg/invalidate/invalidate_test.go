package invalidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/orm"
	"github.com/cuemby/stash/pkg/resultset"
	"github.com/cuemby/stash/pkg/store/local"
	"github.com/cuemby/stash/pkg/telemetry"
)

type order struct{ ID int }

type fakeModel struct{}

func (fakeModel) FindEntityType(entity any) (orm.EntityType, bool) {
	switch entity.(type) {
	case order:
		return orm.EntityType{
			TableName:  "orders",
			Navigations: []orm.Navigation{{TableName: "order_items", IsOwned: true}},
		}, true
	default:
		return orm.EntityType{}, false
	}
}

func sampleSet() *resultset.Set {
	return &resultset.Set{
		Schema:          resultset.Schema{{Name: "id", Ordinal: 0, ValueType: resultset.TypeInt32}},
		Rows:            []resultset.Row{{int32(1)}},
		RecordsAffected: -1,
		ApproxByteSize:  32,
	}
}

func newHarness(t *testing.T) (*API, *local.Store, *telemetry.Recorder) {
	t.Helper()
	opts := config.Default()
	st := local.New(0, nil, nil)
	rec := telemetry.New(opts, st)
	return New(st, rec), st, rec
}

func TestInvalidateTablesIsCaseInsensitive(t *testing.T) {
	api, st, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"products"}))

	require.NoError(t, api.InvalidateTables(ctx, "PRODUCTS"))

	_, ok, _ := st.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestInvalidateTablesLeavesOthersUntouched(t *testing.T) {
	api, st, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"products"}))
	require.NoError(t, st.Set(ctx, "k2", sampleSet(), time.Minute, 0, []string{"orders"}))

	require.NoError(t, api.InvalidateTables(ctx, "products"))

	_, ok1, _ := st.Get(ctx, "k1")
	_, ok2, _ := st.Get(ctx, "k2")
	assert.False(t, ok1)
	assert.True(t, ok2)
}

func TestInvalidateEntitiesResolvesThroughModel(t *testing.T) {
	api, st, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"orders"}))
	require.NoError(t, st.Set(ctx, "k2", sampleSet(), time.Minute, 0, []string{"order_items"}))

	require.NoError(t, api.InvalidateEntities(ctx, fakeModel{}, order{ID: 1}))

	_, ok1, _ := st.Get(ctx, "k1")
	_, ok2, _ := st.Get(ctx, "k2")
	assert.False(t, ok1, "the entity's own table must be invalidated")
	assert.False(t, ok2, "its owned navigation table must be invalidated too")
}

func TestInvalidateEntitiesWithUnmappedTypeIsNoop(t *testing.T) {
	api, st, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"orders"}))

	require.NoError(t, api.InvalidateEntities(ctx, fakeModel{}, "not-mapped"))

	_, ok, _ := st.Get(ctx, "k1")
	assert.True(t, ok)
}

func TestInvalidateKeyRemovesExactEntry(t *testing.T) {
	api, st, rec := newHarness(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "k1", sampleSet(), time.Minute, 0, nil))

	require.NoError(t, api.InvalidateKey(ctx, "k1"))

	_, ok, _ := st.Get(ctx, "k1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), rec.TakeSnapshot().InvalidationsTotal, "InvalidateKey must be telemetry-observable")
}

func TestInvalidateAllClearsEverything(t *testing.T) {
	api, st, rec := newHarness(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "k1", sampleSet(), time.Minute, 0, nil))
	require.NoError(t, st.Set(ctx, "k2", sampleSet(), time.Minute, 0, nil))

	require.NoError(t, api.InvalidateAll(ctx))

	_, ok1, _ := st.Get(ctx, "k1")
	_, ok2, _ := st.Get(ctx, "k2")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Equal(t, int64(1), rec.TakeSnapshot().InvalidationsTotal, "InvalidateAll must be telemetry-observable")
}
