package export

import (
	"fmt"
	"strings"

	"github.com/rpakit/reportbot/internal"
)

// Field describes one parquet column.
type Field struct {
	Name          string
	Type          string
	ConvertedType string
}

type Schema []Field

// ToGoParquetSchema renders the schema in the metadata-string form the
// parquet CSV writer consumes.
func (s Schema) ToGoParquetSchema() []string {
	schema := make([]string, len(s))
	for i, field := range s {
		parts := []string{
			fmt.Sprintf("name=%s", field.Name),
			fmt.Sprintf("type=%s", field.Type),
		}
		if field.ConvertedType != "" {
			parts = append(parts, fmt.Sprintf("convertedtype=%s", field.ConvertedType))
		}
		schema[i] = strings.Join(parts, ", ")
	}

	return schema
}

// SchemaForTable derives a parquet schema from the table's first record.
// The transformer guarantees consistent types across rows.
func SchemaForTable(t *internal.Table) (Schema, error) {
	if t.NumRows() == 0 {
		return nil, fmt.Errorf("cannot derive schema from empty table")
	}

	first := t.Records()[0]
	schema := make(Schema, 0, first.Len())
	for i, name := range first.Fields() {
		f := Field{Name: name}
		switch first.Values()[i].(type) {
		case string:
			f.Type = "BYTE_ARRAY"
			f.ConvertedType = "UTF8"
		case float64:
			f.Type = "DOUBLE"
		case int64:
			f.Type = "INT64"
		case bool:
			f.Type = "BOOLEAN"
		default:
			return nil, fmt.Errorf("unsupported column type %T for %q", first.Values()[i], name)
		}
		schema = append(schema, f)
	}

	return schema, nil
}

// RecordToParquetRow orders a record's values for the parquet writer.
func (s Schema) RecordToParquetRow(r *internal.Record) ([]any, error) {
	if len(s) != r.Len() {
		return nil, fmt.Errorf(
			"schema and record fields mismatch: schema has %d fields, record has %d fields",
			len(s),
			r.Len(),
		)
	}

	row := make([]any, len(s))
	copy(row, r.Values())
	return row, nil
}
