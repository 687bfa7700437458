package resultset

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// wireColumn and wireSet are the self-describing on-wire shapes persisted by
// Serialize. Field order matches spec: columns, rows, then the scalar
// fields.
type wireColumn struct {
	Name         string `msgpack:"name"`
	Ordinal      int    `msgpack:"ordinal"`
	DataTypeName string `msgpack:"data_type_name"`
	ValueType    string `msgpack:"value_type"`
	Nullable     bool   `msgpack:"nullable"`
}

type wireCell struct {
	Null  bool `msgpack:"null"`
	Value any  `msgpack:"value,omitempty"`
}

type wireSet struct {
	Columns         []wireColumn `msgpack:"columns"`
	Rows            [][]wireCell `msgpack:"rows"`
	RecordsAffected int64        `msgpack:"records_affected"`
	ApproxByteSize  int64        `msgpack:"approx_byte_size"`
	CapturedAt      time.Time    `msgpack:"captured_at"`
}

// Serialize encodes r into the self-describing wire format. Serialize never
// fails for a Set built only of whitelisted element types; an error here
// means the caller constructed a Set with a cell type outside the
// whitelist, which is a programming error in the producer, not a runtime
// condition to recover from.
func Serialize(r *Set) ([]byte, error) {
	w := wireSet{
		Columns:         make([]wireColumn, len(r.Schema)),
		Rows:            make([][]wireCell, len(r.Rows)),
		RecordsAffected: r.RecordsAffected,
		ApproxByteSize:  r.ApproxByteSize,
		CapturedAt:      r.CapturedAt,
	}
	for i, c := range r.Schema {
		w.Columns[i] = wireColumn{
			Name:         c.Name,
			Ordinal:      c.Ordinal,
			DataTypeName: c.DataTypeName,
			ValueType:    string(c.ValueType),
			Nullable:     c.Nullable,
		}
	}
	for i, row := range r.Rows {
		wireRow := make([]wireCell, len(row))
		for j, cell := range row {
			if _, isNull := cell.(nullType); isNull || cell == nil {
				wireRow[j] = wireCell{Null: true}
				continue
			}
			encoded, err := encodeCell(r.Schema[j].ValueType, cell)
			if err != nil {
				return nil, err
			}
			wireRow[j] = wireCell{Value: encoded}
		}
		w.Rows[i] = wireRow
	}
	return msgpack.Marshal(&w)
}

// encodeCell converts a typed Row cell into a canonical on-wire
// representation. Every whitelisted element type narrows to one of a small
// number of msgpack-native shapes; the declared ValueType in the schema is
// what lets Deserialize widen it back to the exact Go type on the way out.
func encodeCell(t ElementType, v any) (any, error) {
	switch t {
	case TypeBool:
		return v, nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return toInt64(v)
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return toUint64(v)
	case TypeFloat32, TypeFloat64:
		return toFloat64(v)
	case TypeDecimal:
		d, ok := v.(Decimal)
		if !ok {
			return nil, fmt.Errorf("resultset: expected Decimal, got %T", v)
		}
		return string(d), nil
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("resultset: expected string, got %T", v)
		}
		return s, nil
	case TypeChar:
		c, ok := v.(Char)
		if !ok {
			return nil, fmt.Errorf("resultset: expected Char, got %T", v)
		}
		return int64(c), nil
	case TypeByteArray:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("resultset: expected []byte, got %T", v)
		}
		return b, nil
	case TypeGUID:
		g, ok := v.(GUID)
		if !ok {
			return nil, fmt.Errorf("resultset: expected GUID, got %T", v)
		}
		return g[:], nil
	case TypeDate, TypeTime, TypeDateTime, TypeDateTimeOffset:
		tm, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("resultset: expected time.Time, got %T", v)
		}
		return tm, nil
	case TypeTimeSpan:
		ts, ok := v.(TimeSpan)
		if !ok {
			return nil, fmt.Errorf("resultset: expected TimeSpan, got %T", v)
		}
		return int64(ts), nil
	default:
		return nil, fmt.Errorf("resultset: %w: %q", ErrCorrupt, t)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("resultset: expected signed integer, got %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("resultset: expected unsigned integer, got %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("resultset: expected float, got %T", v)
	}
}

// Deserialize decodes data into a Set, rejecting any payload referencing a
// non-whitelisted element type, any structurally short or malformed input,
// and any value that does not fit its declared type. Deserialize never
// panics: every failure mode returns ErrCorrupt, which callers treat as a
// cache miss.
func Deserialize(data []byte) (set *Set, err error) {
	defer func() {
		if r := recover(); r != nil {
			set, err = nil, ErrCorrupt
		}
	}()

	var w wireSet
	if decErr := msgpack.Unmarshal(data, &w); decErr != nil {
		return nil, ErrCorrupt
	}

	schema := make(Schema, len(w.Columns))
	for i, c := range w.Columns {
		vt := ElementType(c.ValueType)
		if !Whitelist[vt] {
			return nil, ErrCorrupt
		}
		schema[i] = Column{
			Name:         c.Name,
			Ordinal:      c.Ordinal,
			DataTypeName: c.DataTypeName,
			ValueType:    vt,
			Nullable:     c.Nullable,
		}
	}

	rows := make([]Row, len(w.Rows))
	for i, wireRow := range w.Rows {
		if len(wireRow) != len(schema) {
			return nil, ErrCorrupt
		}
		row := make(Row, len(schema))
		for j, cell := range wireRow {
			if cell.Null {
				row[j] = Null
				continue
			}
			decoded, decErr := decodeCell(schema[j].ValueType, cell.Value)
			if decErr != nil {
				return nil, ErrCorrupt
			}
			row[j] = decoded
		}
		rows[i] = row
	}

	return &Set{
		Schema:          schema,
		Rows:            rows,
		RecordsAffected: w.RecordsAffected,
		ApproxByteSize:  w.ApproxByteSize,
		CapturedAt:      w.CapturedAt,
	}, nil
}

func decodeCell(t ElementType, v any) (any, error) {
	switch t {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, ErrCorrupt
		}
		return b, nil
	case TypeInt8:
		n, err := decodedInt64(v)
		if err != nil {
			return nil, err
		}
		return int8(n), nil
	case TypeInt16:
		n, err := decodedInt64(v)
		if err != nil {
			return nil, err
		}
		return int16(n), nil
	case TypeInt32:
		n, err := decodedInt64(v)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case TypeInt64:
		return decodedInt64(v)
	case TypeUint8:
		n, err := decodedUint64(v)
		if err != nil {
			return nil, err
		}
		return uint8(n), nil
	case TypeUint16:
		n, err := decodedUint64(v)
		if err != nil {
			return nil, err
		}
		return uint16(n), nil
	case TypeUint32:
		n, err := decodedUint64(v)
		if err != nil {
			return nil, err
		}
		return uint32(n), nil
	case TypeUint64:
		return decodedUint64(v)
	case TypeFloat32:
		f, err := decodedFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case TypeFloat64:
		return decodedFloat64(v)
	case TypeDecimal:
		s, ok := v.(string)
		if !ok {
			return nil, ErrCorrupt
		}
		return Decimal(s), nil
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, ErrCorrupt
		}
		return s, nil
	case TypeChar:
		n, err := decodedInt64(v)
		if err != nil {
			return nil, err
		}
		return Char(n), nil
	case TypeByteArray:
		b, ok := v.([]byte)
		if !ok {
			return nil, ErrCorrupt
		}
		return b, nil
	case TypeGUID:
		b, ok := v.([]byte)
		if !ok || len(b) != 16 {
			return nil, ErrCorrupt
		}
		var g GUID
		copy(g[:], b)
		return g, nil
	case TypeDate, TypeTime, TypeDateTime, TypeDateTimeOffset:
		tm, ok := v.(time.Time)
		if !ok {
			return nil, ErrCorrupt
		}
		return tm, nil
	case TypeTimeSpan:
		n, err := decodedInt64(v)
		if err != nil {
			return nil, err
		}
		return TimeSpan(n), nil
	default:
		return nil, ErrCorrupt
	}
}

// decodedInt64, decodedUint64, and decodedFloat64 widen the generic numeric
// type msgpack hands back (int64/uint64/float64, occasionally int for small
// positive values) to the canonical width used during encoding.
func decodedInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, ErrCorrupt
	}
}

func decodedUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, ErrCorrupt
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, ErrCorrupt
		}
		return uint64(n), nil
	default:
		return 0, ErrCorrupt
	}
}

func decodedFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, ErrCorrupt
	}
}
