package reader

import (
	"context"
	"time"

	"github.com/cuemby/stash/pkg/driverio"
	"github.com/cuemby/stash/pkg/resultset"
)

// Recorder wraps a live driverio.RowReader, forwarding every call to the
// wrapped reader unchanged while building a *resultset.Set as a side
// effect. Unlike resultset.Capture, a Recorder's caller sees the live rows
// as they are drained; Drained() may be called at any point and holds every
// row recorded so far. Once maxRows is exceeded, Read keeps forwarding live
// rows to the caller but stops recording them, so the caller still receives
// every row while Drained() holds only the rows recorded before the limit
// (see the row-limit decision in DESIGN.md).
type Recorder struct {
	live       driverio.RowReader
	schema     resultset.Schema
	rows       []resultset.Row
	byteSize   int64
	maxRows    int
	overLimit  bool
	cursor     int
	schemaDone bool
}

var _ driverio.RowReader = (*Recorder)(nil)

// NewRecorder wraps live. maxRows <= 0 means no limit is enforced by the
// Recorder itself (the caller may still choose to stop draining).
func NewRecorder(live driverio.RowReader, maxRows int) *Recorder {
	return &Recorder{live: live, maxRows: maxRows, cursor: -1}
}

func (rec *Recorder) ensureSchema() {
	if rec.schemaDone {
		return
	}
	if rich, ok := rec.live.GetColumnSchema(); ok {
		rec.schema = make(resultset.Schema, len(rich))
		for i, c := range rich {
			rec.schema[i] = resultset.Column{
				Name: c.Name, Ordinal: c.Ordinal,
				DataTypeName: c.DataTypeName,
				ValueType:    resultset.ElementType(c.ValueType),
				Nullable:     c.Nullable,
			}
		}
	} else {
		n := rec.live.FieldCount()
		rec.schema = make(resultset.Schema, n)
		for i := 0; i < n; i++ {
			rec.schema[i] = resultset.Column{
				Name: rec.live.GetName(i), Ordinal: i,
				DataTypeName: rec.live.GetDataTypeName(i),
				ValueType:    resultset.ElementType(rec.live.GetFieldType(i)),
				Nullable:     true,
			}
		}
	}
	rec.schemaDone = true
}

func (rec *Recorder) Read(ctx context.Context) (bool, error) {
	ok, err := rec.live.Read(ctx)
	if err != nil || !ok {
		return ok, err
	}
	rec.cursor++
	rec.ensureSchema()

	if rec.maxRows > 0 && len(rec.rows) >= rec.maxRows {
		rec.overLimit = true
		return true, nil
	}

	row := make(resultset.Row, len(rec.schema))
	for i := range rec.schema {
		if rec.live.IsNull(i) {
			row[i] = resultset.Null
			continue
		}
		row[i] = rec.live.GetValue(i)
	}
	rec.rows = append(rec.rows, row)
	return true, nil
}

func (rec *Recorder) FieldCount() int { rec.ensureSchema(); return len(rec.schema) }
func (rec *Recorder) GetName(i int) string { return rec.live.GetName(i) }
func (rec *Recorder) GetDataTypeName(i int) string { return rec.live.GetDataTypeName(i) }
func (rec *Recorder) GetFieldType(i int) string { return rec.live.GetFieldType(i) }
func (rec *Recorder) IsNull(i int) bool { return rec.live.IsNull(i) }
func (rec *Recorder) GetValue(i int) any { return rec.live.GetValue(i) }
func (rec *Recorder) GetColumnSchema() ([]driverio.ColumnSchema, bool) {
	return rec.live.GetColumnSchema()
}
func (rec *Recorder) RecordsAffected() int64 { return rec.live.RecordsAffected() }
func (rec *Recorder) HasRows() bool { return rec.live.HasRows() }

func (rec *Recorder) Close() error {
	return rec.live.Close()
}

// OverLimit reports whether maxRows was exceeded during the drain.
func (rec *Recorder) OverLimit() bool { return rec.overLimit }

// Drained returns the *resultset.Set built from every row recorded so far.
// It is safe to call at any point, including mid-drain (e.g. after an
// OverLimit abort), and returns an immutable snapshot — the Recorder
// itself keeps appending to its own internal slice on subsequent Read
// calls, but previously returned Sets are not mutated because Drained
// always allocates a fresh row slice.
func (rec *Recorder) Drained() *resultset.Set {
	rec.ensureSchema()
	rows := make([]resultset.Row, len(rec.rows))
	copy(rows, rec.rows)

	byteSize := int64(len(rec.schema)) * 48
	for _, row := range rows {
		byteSize += 24
		for i, v := range row {
			byteSize += cellByteEstimate(rec.schema[i].ValueType, v)
		}
	}

	return &resultset.Set{
		Schema:          rec.schema,
		Rows:            rows,
		ApproxByteSize:  byteSize,
		CapturedAt:      time.Now(),
		RecordsAffected: rec.live.RecordsAffected(),
	}
}

// cellByteEstimate duplicates resultset's unexported per-cell estimate
// table for the one cell-iteration Recorder needs to run outside that
// package; kept in sync with resultset.Capture's table in spec.md §4.A.
func cellByteEstimate(t resultset.ElementType, v any) int64 {
	if v == resultset.Null {
		return 0
	}
	switch t {
	case resultset.TypeBool, resultset.TypeInt8, resultset.TypeUint8:
		return 1
	case resultset.TypeInt16, resultset.TypeUint16:
		return 2
	case resultset.TypeInt32, resultset.TypeUint32, resultset.TypeFloat32, resultset.TypeChar:
		return 4
	case resultset.TypeInt64, resultset.TypeUint64, resultset.TypeFloat64:
		return 8
	case resultset.TypeDate, resultset.TypeTime, resultset.TypeTimeSpan:
		return 12
	case resultset.TypeDateTime, resultset.TypeDateTimeOffset, resultset.TypeGUID, resultset.TypeDecimal:
		return 16
	case resultset.TypeString:
		s, _ := v.(string)
		return 2*int64(len(s)) + 40
	case resultset.TypeByteArray:
		b, _ := v.([]byte)
		return int64(len(b)) + 24
	default:
		return 16
	}
}
