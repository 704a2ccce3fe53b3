package aggregate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/queryir"
)

// ErrNonNumeric is returned when a MAX/MIN/AVG/SUM rule meets a value that
// is not a number.
var ErrNonNumeric = errors.New("non-numeric value in numeric aggregate")

// Places is the number of decimal places AVG and SUM round to.
const Places = 2

// Compute evaluates one aggregate over the field values of a group.
//
//	MAX, MIN  largest / smallest value
//	SUM       exact decimal sum rounded half-up to Places
//	AVG       exact decimal sum / member count, rounded half-up to Places
//	COUNT     number of distinct values
//
// Values are converted to decimals from their shortest round-trip
// representation, so 1.005 is summed as exactly 1.005.
func Compute(op queryir.AggOp, field string, records []ir.Record) (ir.Value, error) {
	if op == queryir.AggCount {
		return countDistinct(field, records)
	}

	nums := make([]float64, 0, len(records))
	for i, r := range records {
		v, ok := r.Get(field)
		if !ok {
			return nil, fmt.Errorf("%s(%s): record %d: missing field", op, field, i)
		}
		n, ok := v.(ir.Number)
		if !ok {
			return nil, fmt.Errorf("%s(%s): record %d: %w", op, field, i, ErrNonNumeric)
		}
		nums = append(nums, n.Float())
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("%s(%s): empty group", op, field)
	}

	switch op {
	case queryir.AggMax:
		m := nums[0]
		for _, n := range nums[1:] {
			m = max(m, n)
		}
		return ir.Number(m), nil

	case queryir.AggMin:
		m := nums[0]
		for _, n := range nums[1:] {
			m = min(m, n)
		}
		return ir.Number(m), nil

	case queryir.AggSum:
		return toNumber(sum(nums).Round(Places)), nil

	case queryir.AggAvg:
		// DivRound rounds the exact quotient once; Div would round to
		// DivisionPrecision first.
		return toNumber(sum(nums).DivRound(decimal.NewFromInt(int64(len(nums))), Places)), nil

	default:
		return nil, fmt.Errorf("unknown aggregate %q", op)
	}
}

func sum(nums []float64) decimal.Decimal {
	total := decimal.Zero
	for _, n := range nums {
		total = total.Add(decimal.NewFromFloat(n))
	}
	return total
}

func toNumber(d decimal.Decimal) ir.Value {
	f, _ := d.Float64()
	return ir.Number(f)
}

// countDistinct counts distinct values of field. Values are compared by
// canonical encoding, the same identity used for group keys. Records
// without the field contribute nothing.
func countDistinct(field string, records []ir.Record) (ir.Value, error) {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		v, ok := r.Get(field)
		if !ok {
			continue
		}
		b, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, fmt.Errorf("COUNT(%s): record %d: %w", field, i, err)
		}
		seen[string(b)] = struct{}{}
	}
	return ir.Number(len(seen)), nil
}
