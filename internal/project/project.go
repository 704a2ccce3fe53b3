// Package project turns filtered records or aggregated groups into output
// rows and orders them.
package project

import (
	"fmt"

	"github.com/roach88/insight/internal/aggregate"
	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/queryir"
)

// Records projects each record onto the requested columns. Column names are
// kept exactly as written in the query (e.g. "sections_avg").
func Records(records []ir.Record, columns []queryir.Column) ([]ir.Row, error) {
	names := columnNames(columns)
	rows := make([]ir.Row, len(records))
	for i, r := range records {
		vals := make([]ir.Value, len(columns))
		for j, col := range columns {
			if col.IsAlias {
				return nil, fmt.Errorf("column %q: alias without TRANSFORMATIONS", col.Name)
			}
			v, ok := r.Get(col.Key.Field)
			if !ok {
				return nil, fmt.Errorf("record %d: missing field %q", i, col.Key.Field)
			}
			vals[j] = v
		}
		rows[i] = ir.Row{Columns: names, Values: vals}
	}
	return rows, nil
}

// Groups builds one row per group. Group-field columns take the group's
// GROUP value; alias columns take the matching APPLY result.
//
// aggs holds one slice per group with one value per rule, as returned by
// aggregate.Aggregator.Apply.
func Groups(groups []aggregate.Group, aggs [][]ir.Value, tr *queryir.Transformations, columns []queryir.Column) ([]ir.Row, error) {
	if len(aggs) != len(groups) {
		return nil, fmt.Errorf("have %d aggregate results for %d groups", len(aggs), len(groups))
	}

	// Resolve each column to a position once, then read per group.
	type source struct {
		group bool
		index int
	}
	sources := make([]source, len(columns))
	for j, col := range columns {
		found := false
		if col.IsAlias {
			for k, rule := range tr.Apply {
				if rule.Alias == col.Name {
					sources[j], found = source{index: k}, true
					break
				}
			}
		} else {
			for k, key := range tr.Group {
				if key == col.Key {
					sources[j], found = source{group: true, index: k}, true
					break
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("column %q is neither a GROUP key nor an APPLY key", col.Name)
		}
	}

	names := columnNames(columns)
	rows := make([]ir.Row, len(groups))
	for i, g := range groups {
		vals := make([]ir.Value, len(columns))
		for j, src := range sources {
			if src.group {
				vals[j] = g.Values[src.index]
			} else {
				vals[j] = aggs[i][src.index]
			}
		}
		rows[i] = ir.Row{Columns: names, Values: vals}
	}
	return rows, nil
}

func columnNames(columns []queryir.Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
