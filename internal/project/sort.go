package project

import (
	"cmp"
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/queryir"
)

// Sorter orders rows by an ORDER clause.
//
// Strings compare with a locale-aware collator, numbers numerically, and
// every number sorts before every string. The sort is stable: rows that tie
// on every key keep their input order. One direction applies to all keys.
type Sorter struct {
	tag language.Tag
}

// NewSorter creates a Sorter collating strings for the given language.
func NewSorter(tag language.Tag) *Sorter {
	return &Sorter{tag: tag}
}

var defaultSorter = NewSorter(language.English)

// Sort orders rows in place using English collation.
// A nil order leaves rows untouched.
func Sort(rows []ir.Row, order *queryir.Order) error {
	return defaultSorter.Sort(rows, order)
}

// Sort orders rows in place. A nil order leaves rows untouched.
func (s *Sorter) Sort(rows []ir.Row, order *queryir.Order) error {
	if order == nil || len(rows) == 0 {
		return nil
	}

	// Resolve key positions against the first row; every row shares its
	// column layout.
	idx := make([]int, len(order.Keys))
	for i, k := range order.Keys {
		idx[i] = slices.Index(rows[0].Columns, k)
		if idx[i] < 0 {
			return fmt.Errorf("ORDER key %q is not an output column", k)
		}
	}

	// A collator keeps internal buffers and is not safe for concurrent use.
	c := collate.New(s.tag)
	sign := 1
	if order.Dir == queryir.DirDown {
		sign = -1
	}

	slices.SortStableFunc(rows, func(a, b ir.Row) int {
		for _, i := range idx {
			if r := compareValues(c, a.Values[i], b.Values[i]); r != 0 {
				return sign * r
			}
		}
		return 0
	})
	return nil
}

func compareValues(c *collate.Collator, a, b ir.Value) int {
	as, aStr := a.(ir.String)
	bs, bStr := b.(ir.String)
	if aStr && bStr {
		if r := c.CompareString(string(as), string(bs)); r != 0 {
			return r
		}
		// Collation can equate distinct strings; fall back to bytes so the
		// order stays total.
		return cmp.Compare(as, bs)
	}
	return ir.Compare(a, b)
}
