// Package resultset implements the in-memory result-set model: an ordered
// column schema plus a row matrix, captured once from a live driverio.RowReader
// and thereafter immutable. See codec.go for the on-disk/on-wire encoding and
// capture.go for the drain-a-live-reader operation.
package resultset

import (
	"errors"
	"time"
)

// ElementType is one of the whitelisted scalar types a Row cell may hold.
// The string values are the canonical identifiers used both by the codec
// (pkg/resultset's wire format) and by error messages; they are stable and
// must not be renamed without a codec version bump.
type ElementType string

const (
	TypeBool            ElementType = "bool"
	TypeInt8            ElementType = "int8"
	TypeInt16           ElementType = "int16"
	TypeInt32           ElementType = "int32"
	TypeInt64           ElementType = "int64"
	TypeUint8           ElementType = "uint8"
	TypeUint16          ElementType = "uint16"
	TypeUint32          ElementType = "uint32"
	TypeUint64          ElementType = "uint64"
	TypeFloat32         ElementType = "float32"
	TypeFloat64         ElementType = "float64"
	TypeDecimal         ElementType = "decimal"
	TypeString          ElementType = "string"
	TypeChar            ElementType = "char"
	TypeByteArray        ElementType = "byte-array"
	TypeGUID            ElementType = "guid"
	TypeDate            ElementType = "date"
	TypeTime            ElementType = "time"
	TypeDateTime        ElementType = "date-time"
	TypeDateTimeOffset  ElementType = "date-time-with-offset"
	TypeTimeSpan        ElementType = "time-span"
)

// Whitelist is the fixed set of element types the codec will accept on
// deserialization. Any type name absent from this set must be rejected as
// corrupt; this is a security boundary (see DESIGN.md), not a convenience.
var Whitelist = map[ElementType]bool{
	TypeBool: true, TypeInt8: true, TypeInt16: true, TypeInt32: true, TypeInt64: true,
	TypeUint8: true, TypeUint16: true, TypeUint32: true, TypeUint64: true,
	TypeFloat32: true, TypeFloat64: true, TypeDecimal: true,
	TypeString: true, TypeChar: true, TypeByteArray: true, TypeGUID: true,
	TypeDate: true, TypeTime: true, TypeDateTime: true, TypeDateTimeOffset: true, TypeTimeSpan: true,
}

// Column describes one column's schema metadata. Ordinal equals position in
// the schema slice; it is kept as an explicit field so a Column can be
// passed around without its enclosing Schema.
type Column struct {
	Name         string
	Ordinal      int
	DataTypeName string
	ValueType    ElementType
	Nullable     bool
}

// Schema is the ordered column list for a Set.
type Schema []Column

// ByName returns the ordinal of the column matching name, case-insensitively,
// or -1 if none matches.
func (s Schema) ByName(name string) int {
	for _, c := range s {
		if equalFold(c.Name, name) {
			return c.Ordinal
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Null is the language-neutral absent-value marker stored in a Row cell in
// place of a driver-specific "DB null" sentinel. The distinction between
// Null and a legitimate zero value is recovered only at replay time via
// Reader.IsNull, never by comparing the stored value to a zero value.
type nullType struct{}

// Null is the sentinel value for an absent cell.
var Null = nullType{}

// Char, Decimal, GUID, and TimeSpan are named Go types used to disambiguate
// whitelist element types that would otherwise share an underlying Go type
// (string for both TypeString and TypeDecimal, for instance).
type (
	Char     rune
	Decimal  string
	GUID     [16]byte
	TimeSpan time.Duration
)

// Row is a fixed-length slice of cell values, one per schema column. Every
// element is either Null or a value whose runtime type matches the column's
// ValueType per the whitelist.
type Row []any

// Set is an immutable, captured result set: schema, row matrix, and the
// scalar metadata fields from the driver. It is safe to share a *Set across
// any number of concurrent Reader instances (see pkg/reader) because nothing
// in this package mutates a Set after Capture returns.
type Set struct {
	Schema          Schema
	Rows            []Row
	ApproxByteSize  int64
	CapturedAt      time.Time
	RecordsAffected int64
}

// ErrTooManyRows is returned by Capture when the reader produced more rows
// than the configured maximum. No partial Set is returned alongside it; the
// caller decides whether to replay the rows drained so far (see
// pkg/reader.Recorder) or serve an empty result.
var ErrTooManyRows = errors.New("resultset: row count exceeds maximum")

// ErrCorrupt is returned by Deserialize when the input is not a valid,
// whitelist-conformant encoding of a Set. Callers must treat ErrCorrupt as a
// cache miss, never as a fatal error.
var ErrCorrupt = errors.New("resultset: corrupt or non-whitelisted payload")

// perCellByteEstimate returns the conservative per-cell byte estimate used
// by Capture's approx-byte-size accounting.
func perCellByteEstimate(t ElementType, v any) int64 {
	if v == nil {
		return 0
	}
	if _, isNull := v.(nullType); isNull {
		return 0
	}
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32, TypeChar:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	case TypeDate, TypeTime, TypeTimeSpan:
		return 12
	case TypeDateTime, TypeDateTimeOffset, TypeGUID, TypeDecimal:
		return 16
	case TypeString:
		s, _ := v.(string)
		return 2*int64(len(s)) + 40
	case TypeByteArray:
		b, _ := v.([]byte)
		return int64(len(b)) + 24
	default:
		return 16
	}
}

// columnOverhead is the conservative per-column schema overhead added to
// ApproxByteSize during capture.
const columnOverhead = 48

// rowOverhead is the conservative per-row overhead: one reference plus one
// reference per cell, approximated as a flat constant per row in addition to
// per-cell estimates.
const rowOverhead = 24
