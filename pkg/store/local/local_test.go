package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stash/pkg/resultset"
)

func sampleSet() *resultset.Set {
	return &resultset.Set{
		Schema:          resultset.Schema{{Name: "id", Ordinal: 0, ValueType: resultset.TypeInt32}},
		Rows:            []resultset.Row{{int32(1)}},
		RecordsAffected: -1,
		ApproxByteSize:  100,
	}
}

func TestSetThenGetReturnsEqualSet(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"products"}))

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleSet().Rows, got.Rows)
}

func TestGetMissOnUnknownKey(t *testing.T) {
	s := New(0, nil, nil)
	_, ok, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateByTagsRemovesMatchingEntry(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"products", "orders"}))

	require.NoError(t, s.InvalidateByTags(ctx, []string{"orders"}))

	_, ok, _ := s.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestInvalidateByTagsLeavesUnrelatedTagsUntouched(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", sampleSet(), time.Minute, 0, []string{"products"}))
	require.NoError(t, s.Set(ctx, "k2", sampleSet(), time.Minute, 0, []string{"orders"}))

	require.NoError(t, s.InvalidateByTags(ctx, []string{"products"}))

	_, ok1, _ := s.Get(ctx, "k1")
	_, ok2, _ := s.Get(ctx, "k2")
	assert.False(t, ok1)
	assert.True(t, ok2)
}

func TestInvalidateAllExpiresEveryPriorEntry(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", sampleSet(), time.Minute, 0, nil))

	require.NoError(t, s.InvalidateAll(ctx))

	_, ok, _ := s.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestAbsoluteTTLExpiryWithInjectableClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := New(0, clock, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", sampleSet(), 5*time.Second, 0, nil))

	_, ok, _ := s.Get(ctx, "k1")
	assert.True(t, ok)

	now = now.Add(10 * time.Second)
	_, ok, _ = s.Get(ctx, "k1")
	assert.False(t, ok, "entry must expire once the absolute deadline is in the past")
}

func TestSlidingWindowExpiresEntryBeforeAbsoluteDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := New(0, clock, nil)
	ctx := context.Background()

	globalDefault := 5 * time.Second
	require.NoError(t, s.Set(ctx, "k1", sampleSet(), globalDefault, 2*time.Second, nil))

	now = now.Add(1 * time.Second)
	_, ok, _ := s.Get(ctx, "k1")
	require.True(t, ok, "access within the sliding window refreshes it")

	now = now.Add(3 * time.Second)
	_, ok, _ = s.Get(ctx, "k1")
	assert.False(t, ok, "sliding window lapsed since the last access")
}

func TestEmptyResultSetAdmittedNormally(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()
	empty := &resultset.Set{Schema: resultset.Schema{{Name: "id"}}, Rows: nil, RecordsAffected: -1}

	require.NoError(t, s.Set(ctx, "k1", empty, time.Minute, 0, nil))

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Rows)
}

func TestConcurrentSetGetIsSafe(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 200; i++ {
			_ = s.Set(ctx, "k", sampleSet(), time.Minute, 0, []string{"products"})
		}
		close(done)
	}()

	for i := 0; i < 200; i++ {
		_, _, _ = s.Get(ctx, "k")
	}
	<-done
}
