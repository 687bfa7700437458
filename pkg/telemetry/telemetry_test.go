package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/health"
	"github.com/cuemby/stash/pkg/resultset"
)

type fakeProbe struct {
	err error
}

func (f fakeProbe) Get(ctx context.Context, key string) (*resultset.Set, bool, error) {
	return nil, false, f.err
}

func TestRecordHitMissSnapshot(t *testing.T) {
	r := New(config.Default(), fakeProbe{})
	r.RecordHit("k1")
	r.RecordHit("k1")
	r.RecordMiss("k2")

	snap := r.TakeSnapshot()
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.InDelta(t, 66.66, snap.HitRatePercent, 0.1)
}

func TestRecordAdmitAndEvictionTracksBytes(t *testing.T) {
	r := New(config.Default(), fakeProbe{})
	r.RecordAdmit("k1", 10, 1000, 0)
	r.RecordEviction(400)

	snap := r.TakeSnapshot()
	assert.Equal(t, int64(600), snap.BytesCached)
}

func TestRecordInvalidationByTable(t *testing.T) {
	r := New(config.Default(), fakeProbe{})
	r.RecordInvalidation([]string{"products", "orders"})

	snap := r.TakeSnapshot()
	assert.Equal(t, int64(2), snap.InvalidationsTotal)
	assert.Equal(t, int64(1), snap.InvalidationsByTable["products"])
	assert.Equal(t, int64(1), snap.InvalidationsByTable["orders"])
}

func TestCheckHealthyWithNoRequests(t *testing.T) {
	r := New(config.Default(), fakeProbe{})
	res := r.Check(context.Background())
	assert.Equal(t, health.Healthy, res.Level)
}

func TestCheckUnhealthyOnProbeError(t *testing.T) {
	r := New(config.Default(), fakeProbe{err: errors.New("boom")})
	res := r.Check(context.Background())
	assert.Equal(t, health.Unhealthy, res.Level)
}

func TestCheckDegradedBelowMinimumHitRate(t *testing.T) {
	opts := config.Default()
	opts.MinimumHitRatePercent = 90
	r := New(opts, fakeProbe{})
	r.RecordHit("k1")
	r.RecordMiss("k2")

	res := r.Check(context.Background())
	assert.Equal(t, health.Degraded, res.Level)
}

func TestCheckHealthyAboveMinimumHitRate(t *testing.T) {
	opts := config.Default()
	opts.MinimumHitRatePercent = 50
	r := New(opts, fakeProbe{})
	r.RecordHit("k1")
	r.RecordHit("k2")
	r.RecordMiss("k3")

	res := r.Check(context.Background())
	assert.Equal(t, health.Healthy, res.Level)
}

func TestEventsForwardedToOnEvent(t *testing.T) {
	var got []config.Event
	opts := config.Default()
	opts.OnEvent = func(e config.Event) { got = append(got, e) }
	r := New(opts, fakeProbe{})

	r.RecordHit("k1")
	r.RecordSkipTooManyRows("k2", 10)

	require.Len(t, got, 2)
	assert.Equal(t, config.EventCacheHit, got[0].Kind)
	assert.Equal(t, config.EventSkippedTooManyRows, got[1].Kind)
}
