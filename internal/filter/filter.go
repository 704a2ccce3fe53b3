// Package filter evaluates WHERE predicates over a record set.
//
// Evaluation is set based. Every node is evaluated against the set handed
// to it and returns a subset of that set:
//
//	eval(nil, S)     = S
//	eval(And(ps), S) = ∩ eval(p, S) for p in ps   (S when ps is empty)
//	eval(Or(ps), S)  = ∪ eval(p, S) for p in ps   (∅ when ps is empty)
//	eval(Not(p), S)  = S \ eval(p, S)
//	eval(leaf, S)    = {r in S | leaf matches r}
//
// Sets are masks over the indexes of the input slice, so the output keeps
// input order and never contains a record twice.
package filter

import (
	"errors"
	"fmt"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/queryir"
)

// ErrUnknownPredicate is returned for predicate nodes the evaluator does not
// recognize.
var ErrUnknownPredicate = errors.New("unknown predicate")

// Evaluate returns the records that satisfy p, in input order.
// A nil predicate (the empty WHERE) returns every record.
func Evaluate(p queryir.Predicate, records []ir.Record) ([]ir.Record, error) {
	m, err := eval(p, records, full(len(records)))
	if err != nil {
		return nil, err
	}

	out := make([]ir.Record, 0, m.count())
	for i, in := range m {
		if in {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// Count returns how many records satisfy p without materializing them.
func Count(p queryir.Predicate, records []ir.Record) (int, error) {
	m, err := eval(p, records, full(len(records)))
	if err != nil {
		return 0, err
	}
	return m.count(), nil
}

func eval(p queryir.Predicate, records []ir.Record, in mask) (mask, error) {
	switch pred := p.(type) {
	case nil:
		return in.clone(), nil

	case queryir.And:
		out := in.clone()
		for _, child := range pred.Predicates {
			m, err := eval(child, records, in)
			if err != nil {
				return nil, err
			}
			out.intersect(m)
		}
		return out, nil

	case queryir.Or:
		out := make(mask, len(in))
		for _, child := range pred.Predicates {
			m, err := eval(child, records, in)
			if err != nil {
				return nil, err
			}
			out.union(m)
		}
		return out, nil

	case queryir.Not:
		m, err := eval(pred.Predicate, records, in)
		if err != nil {
			return nil, err
		}
		out := in.clone()
		out.subtract(m)
		return out, nil

	case queryir.Is:
		return leaf(records, in, func(r ir.Record) bool {
			return matchIs(pred, r)
		}), nil

	case queryir.Compare:
		return leaf(records, in, func(r ir.Record) bool {
			return matchCompare(pred, r)
		}), nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPredicate, p)
	}
}

func leaf(records []ir.Record, in mask, match func(ir.Record) bool) mask {
	out := make(mask, len(in))
	for i, ok := range in {
		if ok && match(records[i]) {
			out[i] = true
		}
	}
	return out
}

// matchIs reports whether the record's s-field matches the pattern.
// A missing field or a numeric value never matches.
func matchIs(p queryir.Is, r ir.Record) bool {
	v, ok := r.Get(p.Key.Field)
	if !ok {
		return false
	}
	s, ok := v.(ir.String)
	if !ok {
		return false
	}
	return p.Pattern.Match(string(s))
}

// matchCompare reports whether the record's m-field satisfies the comparison.
// A missing field or a string value never matches.
func matchCompare(p queryir.Compare, r ir.Record) bool {
	v, ok := r.Get(p.Key.Field)
	if !ok {
		return false
	}
	n, ok := v.(ir.Number)
	if !ok {
		return false
	}
	switch p.Op {
	case queryir.OpLT:
		return n.Float() < p.Value
	case queryir.OpGT:
		return n.Float() > p.Value
	case queryir.OpEQ:
		return n.Float() == p.Value
	default:
		return false
	}
}
