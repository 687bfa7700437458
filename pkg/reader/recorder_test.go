package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stash/pkg/driverio"
)

type fakeLiveReader struct {
	rows     [][]any
	cursor   int
	closed   bool
	affected int64
}

func (f *fakeLiveReader) Read(ctx context.Context) (bool, error) {
	if f.cursor+1 >= len(f.rows) {
		return false, nil
	}
	f.cursor++
	return true, nil
}
func (f *fakeLiveReader) FieldCount() int                  { return 1 }
func (f *fakeLiveReader) GetName(i int) string             { return "value" }
func (f *fakeLiveReader) GetDataTypeName(i int) string      { return "text" }
func (f *fakeLiveReader) GetFieldType(i int) string         { return "string" }
func (f *fakeLiveReader) IsNull(i int) bool                 { return f.rows[f.cursor][i] == nil }
func (f *fakeLiveReader) GetValue(i int) any                { return f.rows[f.cursor][i] }
func (f *fakeLiveReader) GetColumnSchema() ([]driverio.ColumnSchema, bool) {
	return nil, false
}
func (f *fakeLiveReader) RecordsAffected() int64 { return f.affected }
func (f *fakeLiveReader) HasRows() bool          { return len(f.rows) > 0 }
func (f *fakeLiveReader) Close() error           { f.closed = true; return nil }

func TestRecorderForwardsRowsWhileCapturing(t *testing.T) {
	live := &fakeLiveReader{rows: [][]any{{"a"}, {"b"}}, cursor: -1, affected: -1}
	rec := NewRecorder(live, 0)

	var forwarded int
	for {
		ok, err := rec.Read(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		forwarded++
		assert.NotNil(t, rec.GetValue(0))
	}
	assert.Equal(t, 2, forwarded)

	set := rec.Drained()
	assert.Len(t, set.Rows, 2)
}

func TestRecorderOverLimitStillForwardsRows(t *testing.T) {
	live := &fakeLiveReader{rows: [][]any{{"a"}, {"b"}, {"c"}}, cursor: -1, affected: -1}
	rec := NewRecorder(live, 2)

	var forwarded int
	for {
		ok, err := rec.Read(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		forwarded++
	}
	assert.Equal(t, 3, forwarded, "recorder must keep forwarding rows to the caller past the limit")
	assert.True(t, rec.OverLimit())

	set := rec.Drained()
	assert.Len(t, set.Rows, 2, "drained set holds only the rows recorded before the limit was hit")
}

func TestRecorderCloseClosesLiveReader(t *testing.T) {
	live := &fakeLiveReader{affected: -1}
	rec := NewRecorder(live, 0)
	require.NoError(t, rec.Close())
	assert.True(t, live.closed)
}
