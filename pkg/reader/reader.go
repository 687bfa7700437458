// Package reader implements the replay half of Stash's capture/replay
// contract: Reader exposes an immutable *resultset.Set back through the
// same driverio.RowReader interface the driver exposes, with an
// independent forward-only cursor per instance. Recorder is the
// complementary wrapper used when a live reader must be drained into a
// Set while still forwarding every row to its original caller (the
// admission path in pkg/intercept uses this instead of resultset.Capture
// so a too-many-rows abort still delivers every row to the caller).
package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/resultset"
)

// ErrCastNull is returned by GetFieldValue when the stored cell is Null;
// there is no value of T to widen into.
var ErrCastNull = errors.New("reader: cannot cast null to requested type")

// Reader replays a *resultset.Set through the driverio.RowReader contract.
// Any number of Readers may be constructed over the same Set and iterate
// concurrently without affecting one another's cursor, because the Set is
// immutable after capture.
type Reader struct {
	set    *resultset.Set
	cursor int
}

// New returns a Reader with its cursor positioned before the first row.
func New(set *resultset.Set) *Reader {
	return &Reader{set: set, cursor: -1}
}

var _ driverio.RowReader = (*Reader)(nil)

func (r *Reader) Read(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if r.cursor+1 >= len(r.set.Rows) {
		r.cursor = len(r.set.Rows)
		return false, nil
	}
	r.cursor++
	return true, nil
}

func (r *Reader) FieldCount() int { return len(r.set.Schema) }

func (r *Reader) GetName(i int) string { return r.set.Schema[i].Name }

func (r *Reader) GetDataTypeName(i int) string { return r.set.Schema[i].DataTypeName }

func (r *Reader) GetFieldType(i int) string { return string(r.set.Schema[i].ValueType) }

func (r *Reader) IsNull(i int) bool {
	return r.currentRow()[i] == resultset.Null
}

func (r *Reader) GetValue(i int) any {
	v := r.currentRow()[i]
	if v == resultset.Null {
		return nil
	}
	return v
}

// GetOrdinal returns the ordinal of the named column, matched
// case-insensitively, or -1 if no column matches.
func (r *Reader) GetOrdinal(name string) int {
	return r.set.Schema.ByName(name)
}

func (r *Reader) GetColumnSchema() ([]driverio.ColumnSchema, bool) {
	out := make([]driverio.ColumnSchema, len(r.set.Schema))
	for i, c := range r.set.Schema {
		out[i] = driverio.ColumnSchema{
			Name:         c.Name,
			Ordinal:      c.Ordinal,
			DataTypeName: c.DataTypeName,
			ValueType:    string(c.ValueType),
			Nullable:     c.Nullable,
		}
	}
	return out, true
}

func (r *Reader) RecordsAffected() int64 { return r.set.RecordsAffected }

func (r *Reader) HasRows() bool { return len(r.set.Rows) > 0 }

// NextResult always returns false: Stash's capture/replay model covers a
// single result set per command.
func (r *Reader) NextResult() bool { return false }

func (r *Reader) Close() error { return nil }

func (r *Reader) currentRow() resultset.Row {
	return r.set.Rows[r.cursor]
}

// GetFieldValue returns the current row's cell at ordinal i widened to T.
// If the stored value is already of type T it is returned directly;
// otherwise a widening numeric conversion is attempted (e.g. int64 to
// int32). A Null cell fails with ErrCastNull.
func GetFieldValue[T any](r *Reader, i int) (T, error) {
	var zero T
	v := r.currentRow()[i]
	if v == resultset.Null {
		return zero, ErrCastNull
	}
	if exact, ok := v.(T); ok {
		return exact, nil
	}
	converted, err := widen(v, zero)
	if err != nil {
		return zero, err
	}
	out, ok := converted.(T)
	if !ok {
		return zero, fmt.Errorf("reader: cannot cast %T to %T", v, zero)
	}
	return out, nil
}

// widen performs the numeric widening/narrowing conversions GetFieldValue
// needs when the caller's requested type doesn't exactly match the stored
// element type (e.g. a column captured as int64 read back as int32).
func widen(v any, target any) (any, error) {
	srcF, srcOK := asFloat64(v)
	if !srcOK {
		return nil, fmt.Errorf("reader: cannot cast %T to %T", v, target)
	}
	switch target.(type) {
	case int8:
		return int8(srcF), nil
	case int16:
		return int16(srcF), nil
	case int32:
		return int32(srcF), nil
	case int64:
		return int64(srcF), nil
	case int:
		return int(srcF), nil
	case uint8:
		return uint8(srcF), nil
	case uint16:
		return uint16(srcF), nil
	case uint32:
		return uint32(srcF), nil
	case uint64:
		return uint64(srcF), nil
	case float32:
		return float32(srcF), nil
	case float64:
		return srcF, nil
	default:
		return nil, fmt.Errorf("reader: cannot cast %T to %T", v, target)
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
