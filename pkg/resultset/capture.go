package resultset

import (
	"context"
	"time"

	"github.com/cuemby/stash/pkg/driverio"
)

// Capture drains reader fully into an immutable *Set, closing reader on
// every exit path. If the reader produces more than maxRows rows (maxRows
// <= 0 means unlimited), Capture closes the reader and returns
// ErrTooManyRows without a partial Set; callers that still need the rows
// already drained should use Recorder (pkg/reader) instead of Capture
// directly when partial-replay-on-overflow matters to them.
func Capture(ctx context.Context, reader driverio.RowReader, maxRows int) (*Set, error) {
	schema := captureSchema(reader)

	var rows []Row
	var byteSize int64 = int64(len(schema)) * columnOverhead

	for {
		ok, err := reader.Read(ctx)
		if err != nil {
			_ = reader.Close()
			return nil, err
		}
		if !ok {
			break
		}
		if maxRows > 0 && len(rows) >= maxRows {
			_ = reader.Close()
			return nil, ErrTooManyRows
		}

		row := make(Row, len(schema))
		for i := range schema {
			if reader.IsNull(i) {
				row[i] = Null
				continue
			}
			v := reader.GetValue(i)
			row[i] = v
			byteSize += perCellByteEstimate(schema[i].ValueType, v)
		}
		byteSize += rowOverhead
		rows = append(rows, row)
	}

	recordsAffected := reader.RecordsAffected()
	if err := reader.Close(); err != nil {
		return nil, err
	}

	return &Set{
		Schema:          schema,
		Rows:            rows,
		ApproxByteSize:  byteSize,
		CapturedAt:      time.Now(),
		RecordsAffected: recordsAffected,
	}, nil
}

// captureSchema reads the full column schema, preferring the richer
// GetColumnSchema API and falling back to per-field FieldCount/GetName/
// GetDataTypeName/GetFieldType when the driver does not expose it.
func captureSchema(reader driverio.RowReader) Schema {
	if rich, ok := reader.GetColumnSchema(); ok {
		schema := make(Schema, len(rich))
		for i, c := range rich {
			schema[i] = Column{
				Name:         c.Name,
				Ordinal:      c.Ordinal,
				DataTypeName: c.DataTypeName,
				ValueType:    ElementType(c.ValueType),
				Nullable:     c.Nullable,
			}
		}
		return schema
	}

	n := reader.FieldCount()
	schema := make(Schema, n)
	for i := 0; i < n; i++ {
		schema[i] = Column{
			Name:         reader.GetName(i),
			Ordinal:      i,
			DataTypeName: reader.GetDataTypeName(i),
			ValueType:    ElementType(reader.GetFieldType(i)),
			Nullable:     true,
		}
	}
	return schema
}
