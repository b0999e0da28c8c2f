package internal

import "fmt"

// Record is a single row of report data: a set of fields and their
// corresponding values. Field order is critical for serializers, so the
// fields are kept in a slice rather than a map.
type Record struct {
	fields []string
	values []any
}

func NewRecord(fields []string, values []any) *Record {
	return &Record{
		fields: fields,
		values: values,
	}
}

func (r *Record) Len() int {
	return len(r.fields)
}

func (r *Record) Fields() []string {
	return r.fields
}

func (r *Record) Values() []any {
	return r.values
}

// Value returns the value of the named field, or nil when the record
// does not carry it.
func (r *Record) Value(field string) any {
	for i, f := range r.fields {
		if f == field {
			return r.values[i]
		}
	}
	return nil
}

func (r *Record) Map() map[string]any {
	m := make(map[string]any)
	for i, field := range r.fields {
		m[field] = r.values[i]
	}
	return m
}

// Table is an ordered collection of records sharing one column set. It is
// the normalized result of a transform, ready for export.
type Table struct {
	columns []string
	records []*Record
}

func NewTable(columns []string) *Table {
	return &Table{columns: columns}
}

func (t *Table) Columns() []string {
	return t.columns
}

func (t *Table) Records() []*Record {
	return t.records
}

func (t *Table) NumRows() int {
	return len(t.records)
}

// Append adds a record to the table. The record must carry exactly the
// table's columns, in order.
func (t *Table) Append(r *Record) error {
	if r.Len() != len(t.columns) {
		return fmt.Errorf(
			"record has %d fields, table has %d columns",
			r.Len(),
			len(t.columns),
		)
	}
	t.records = append(t.records, r)
	return nil
}
