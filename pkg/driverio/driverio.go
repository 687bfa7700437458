// Package driverio defines the contract Stash consumes from the SQL driver
// layer: a forward-only row reader and the shape of an executed command.
// Nothing in this package talks to a real database; adapters for a specific
// driver live outside this module and satisfy these interfaces.
package driverio

import "context"

// Parameter is one named, typed argument bound to a Command.
type Parameter struct {
	Name         string
	Value        any
	DeclaredType string
}

// Command is an opaque SQL text plus its ordered parameter list.
type Command struct {
	Text       string
	Parameters []Parameter
}

// ColumnSchema describes one column's metadata, when the driver exposes a
// richer schema API than FieldCount/GetName/GetDataTypeName.
type ColumnSchema struct {
	Name         string
	Ordinal      int
	DataTypeName string
	ValueType    string
	Nullable     bool
}

// RowReader is the forward-only, single-result-set reader contract the core
// consumes from a driver. It mirrors database/sql.Rows closely enough that a
// thin adapter over *sql.Rows satisfies it directly.
type RowReader interface {
	// Read advances to the next row, returning false when exhausted or on
	// error (the error, if any, is the second result).
	Read(ctx context.Context) (bool, error)

	FieldCount() int
	GetName(i int) string
	GetDataTypeName(i int) string
	GetFieldType(i int) string
	IsNull(i int) bool
	GetValue(i int) any

	// GetColumnSchema returns richer per-column metadata when the driver
	// supports it. ok is false when only FieldCount/GetName/GetDataTypeName
	// are available.
	GetColumnSchema() (schema []ColumnSchema, ok bool)

	// RecordsAffected returns the driver-reported affected-row count, or -1
	// when the driver does not report one (e.g. a SELECT).
	RecordsAffected() int64

	HasRows() bool

	Close() error
}
