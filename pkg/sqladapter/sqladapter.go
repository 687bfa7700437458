// Package sqladapter bridges a database/sql driver to driverio.RowReader,
// the shape pkg/intercept consumes. An ORM whose driver already exposes
// *sql.Rows (rather than its own native cursor type, as ariga/entcache's
// target drivers do) can wrap it with New and hand the result straight to
// Interceptor.Executed.
package sqladapter

import (
	"context"
	"database/sql"

	"github.com/cuemby/stash/pkg/driverio"
)

// Reader adapts *sql.Rows to driverio.RowReader.
type Reader struct {
	rows    *sql.Rows
	cols    []string
	types   []*sql.ColumnType
	current []any
	started bool
}

var _ driverio.RowReader = (*Reader)(nil)

// New returns a Reader over rows. Column metadata is read once, up front,
// since database/sql only exposes it before or during iteration.
func New(rows *sql.Rows) (*Reader, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	return &Reader{rows: rows, cols: cols, types: types}, nil
}

// Read implements driverio.RowReader.
func (r *Reader) Read(ctx context.Context) (bool, error) {
	if !r.rows.Next() {
		return false, r.rows.Err()
	}
	r.started = true

	dest := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return false, err
	}
	r.current = dest
	return true, nil
}

// FieldCount implements driverio.RowReader.
func (r *Reader) FieldCount() int { return len(r.cols) }

// GetName implements driverio.RowReader.
func (r *Reader) GetName(i int) string { return r.cols[i] }

// GetDataTypeName implements driverio.RowReader.
func (r *Reader) GetDataTypeName(i int) string { return r.types[i].DatabaseTypeName() }

// GetFieldType implements driverio.RowReader, reporting the driver's
// reflected Go type name for column i. Falls back to "" when the
// underlying driver doesn't implement RowsColumnTypeScanType.
func (r *Reader) GetFieldType(i int) string {
	t := r.types[i].ScanType()
	if t == nil {
		return ""
	}
	return t.Name()
}

// IsNull implements driverio.RowReader.
func (r *Reader) IsNull(i int) bool { return r.current[i] == nil }

// GetValue implements driverio.RowReader.
func (r *Reader) GetValue(i int) any { return r.current[i] }

// GetColumnSchema implements driverio.RowReader. database/sql exposes
// column metadata through Columns/ColumnTypes rather than a structured
// schema object, so a caller that needs driverio.ColumnSchema should build
// it from GetName/GetDataTypeName/GetFieldType directly; ok is always
// false here.
func (r *Reader) GetColumnSchema() ([]driverio.ColumnSchema, bool) { return nil, false }

// RecordsAffected implements driverio.RowReader. database/sql does not
// expose affected-row counts from a *sql.Rows cursor (only from
// sql.Result, which query execution does not return); -1 signals
// "unknown", per driverio's convention.
func (r *Reader) RecordsAffected() int64 { return -1 }

// HasRows implements driverio.RowReader.
func (r *Reader) HasRows() bool { return r.started }

// Close implements driverio.RowReader.
func (r *Reader) Close() error { return r.rows.Close() }
