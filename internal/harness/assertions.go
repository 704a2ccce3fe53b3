package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/insight/internal/ir"
)

// AssertionError is returned when a query outcome misses its expectation.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Query    string   // Query name
	Type     string   // "error", "count" or "rows"
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Rows     []ir.Row // Actual rows for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Query, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Rows) > 0 {
		fmt.Fprintf(&buf, "\nActual rows:\n")
		for i, r := range e.Rows {
			key, err := rowKey(r)
			if err != nil {
				key = err.Error()
			}
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, key)
		}
	}
	return buf.String()
}

// CheckExpect compares a query outcome against its expectation.
func CheckExpect(out Outcome, exp Expect) error {
	if exp.Error != "" {
		if out.ErrorCode != exp.Error {
			return &AssertionError{
				Query:    out.Name,
				Type:     "error",
				Expected: exp.Error,
				Actual:   describe(out),
				Rows:     out.Rows,
			}
		}
		return nil
	}

	if out.ErrorCode != "" {
		return &AssertionError{
			Query:    out.Name,
			Type:     "rows",
			Expected: "success",
			Actual:   describe(out),
		}
	}

	if exp.Count != nil && len(out.Rows) != *exp.Count {
		return &AssertionError{
			Query:    out.Name,
			Type:     "count",
			Expected: fmt.Sprintf("%d rows", *exp.Count),
			Actual:   fmt.Sprintf("%d rows", len(out.Rows)),
			Rows:     out.Rows,
		}
	}

	if exp.Rows != nil {
		if err := matchRows(out.Rows, exp.Rows, exp.Ordered); err != nil {
			return &AssertionError{
				Query:    out.Name,
				Type:     "rows",
				Expected: fmt.Sprintf("%d rows (ordered=%t)", len(exp.Rows), exp.Ordered),
				Actual:   err.Error(),
				Rows:     out.Rows,
			}
		}
	}
	return nil
}

func describe(out Outcome) string {
	if out.ErrorCode == "" {
		return fmt.Sprintf("success with %d rows", len(out.Rows))
	}
	return fmt.Sprintf("%s (%s)", out.ErrorCode, out.ErrorMessage)
}

// matchRows compares rows by canonical key. Column sets must match
// exactly; column order is not compared.
func matchRows(actual []ir.Row, expected []map[string]any, ordered bool) error {
	if len(actual) != len(expected) {
		return fmt.Errorf("%d rows", len(actual))
	}

	want := make([]string, len(expected))
	for i, m := range expected {
		k, err := mapKey(m)
		if err != nil {
			return fmt.Errorf("expected row %d: %w", i, err)
		}
		want[i] = k
	}
	got := make([]string, len(actual))
	for i, r := range actual {
		k, err := rowKey(r)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		got[i] = k
	}

	if ordered {
		for i := range want {
			if want[i] != got[i] {
				return fmt.Errorf("row %d is %s, want %s", i, got[i], want[i])
			}
		}
		return nil
	}

	remaining := make(map[string]int, len(want))
	for _, k := range want {
		remaining[k]++
	}
	for _, k := range got {
		if remaining[k] == 0 {
			return fmt.Errorf("unexpected row %s", k)
		}
		remaining[k]--
	}
	return nil
}

// mapKey encodes an expected row as {"col":value,...} with sorted columns.
func mapKey(m map[string]any) (string, error) {
	cols := slices.Sorted(maps.Keys(m))
	vals := make([]ir.Value, len(cols))
	for i, c := range cols {
		v, err := ir.FromAny(m[c])
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c, err)
		}
		vals[i] = v
	}
	return encodeRow(cols, vals)
}

func rowKey(r ir.Row) (string, error) {
	cols := slices.Clone(r.Columns)
	slices.Sort(cols)
	vals := make([]ir.Value, len(cols))
	for i, c := range cols {
		vals[i], _ = r.Get(c)
	}
	return encodeRow(cols, vals)
}

func encodeRow(cols []string, vals []ir.Value) (string, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:", c)
		b, err := ir.MarshalCanonical(vals[i])
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
