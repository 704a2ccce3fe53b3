package aggregate

import (
	"fmt"

	"github.com/roach88/insight/internal/ir"
)

// Group is the set of records sharing one GroupKey.
type Group struct {
	// Key is the canonical tuple encoding of Values.
	Key string

	// Values holds the GROUP field values, in GROUP order.
	Values []ir.Value

	// Records are the members, in input order.
	Records []ir.Record
}

// GroupBy partitions records by the values of the given fields.
//
// Groups are returned in order of first appearance in records, and every
// record lands in exactly one group. Keys are built with ir.EncodeTuple, so
// values containing separators or differing only in type never collide.
//
// Returns an error if a record lacks one of the fields.
func GroupBy(records []ir.Record, fields []string) ([]Group, error) {
	var groups []Group
	index := make(map[string]int)

	vals := make([]ir.Value, len(fields))
	for i, r := range records {
		for j, f := range fields {
			v, ok := r.Get(f)
			if !ok {
				return nil, fmt.Errorf("record %d: missing group field %q", i, f)
			}
			vals[j] = v
		}
		key, err := ir.EncodeTuple(vals)
		if err != nil {
			return nil, fmt.Errorf("record %d: group key: %w", i, err)
		}

		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, Group{
				Key:    key,
				Values: append([]ir.Value(nil), vals...),
			})
		}
		groups[g].Records = append(groups[g].Records, r)
	}
	return groups, nil
}
