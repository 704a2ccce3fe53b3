package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an immutable field bag belonging to exactly one dataset.
//
// Fields are keyed by bare field name ("avg", "dept"), never by the
// "<dataset>_<field>" reference form used in queries. Records are produced
// by ingestion, stored by the store package and only ever read by the query
// pipeline.
type Record struct {
	Dataset string
	Fields  map[string]Value
}

// NewRecord builds a record from plain Go scalars.
// Returns an error if any value cannot be represented as a Value.
func NewRecord(dataset string, fields map[string]any) (Record, error) {
	r := Record{Dataset: dataset, Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		val, err := FromAny(v)
		if err != nil {
			return Record{}, fmt.Errorf("field %q: %w", k, err)
		}
		r.Fields[k] = val
	}
	return r, nil
}

// Get returns the value of a field and whether the record carries it.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Row is one InsightResult: an ordered mapping from output column name
// (field reference or APPLY alias) to a value.
//
// Column order follows the query's COLUMNS list and is preserved when the
// row is encoded as JSON.
type Row struct {
	Columns []string
	Values  []Value
}

// Get returns the value for a column name.
func (r Row) Get(column string) (Value, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a plain map, losing column order.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = ToAny(r.Values[i])
	}
	return m
}

// MarshalJSON encodes the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", c, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal value for column %q: %w", c, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
