package queryir

import (
	"strings"

	"github.com/roach88/insight/internal/schema"
)

// Predicate represents a WHERE clause node.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the validator and the filter evaluator.
//
// Predicate types:
//   - And: every child must match
//   - Or: at least one child must match
//   - Not: complement of the child relative to the evaluated set
//   - Is: wildcard string match on an s-field
//   - Compare: numeric LT/GT/EQ on an m-field
//
// A nil Predicate is the empty WHERE ({}) and matches every record.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// And represents a conjunction of predicates.
//
// Semantics: the intersection of evaluating each child against the same
// input set. Empty Predicates means "always true" (vacuous truth).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates.
//
// Semantics: the duplicate-free union of evaluating each child against the
// same input set. Empty Predicates means "always false".
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not represents the complement of a predicate.
//
// Semantics: input − evaluate(child, input). The complement is always taken
// against the set passed into the enclosing evaluation, never against a
// partial result.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Is represents a string match on an s-field.
//
// Example:
//
//	{"IS": {"sections_dept": "cp*"}}
//
// becomes
//
//	Is{Key: schema.Key{DatasetID: "sections", Field: "dept"}, Pattern: Pattern{Literal: "cp", Suffix: true}}
type Is struct {
	Key     schema.Key
	Pattern Pattern
}

func (Is) predicateNode() {}

// Op is a numeric comparison operator.
type Op string

const (
	OpLT Op = "LT"
	OpGT Op = "GT"
	OpEQ Op = "EQ"
)

// Compare represents a numeric comparison on an m-field.
//
// Example:
//
//	{"GT": {"sections_avg": 85}}
//
// becomes
//
//	Compare{Op: OpGT, Key: schema.Key{DatasetID: "sections", Field: "avg"}, Value: 85}
type Compare struct {
	Op    Op
	Key   schema.Key
	Value float64
}

func (Compare) predicateNode() {}

// Pattern is an IS-clause pattern: a literal with optional leading and
// trailing wildcards. A leading "*" means the literal may be preceded by
// anything; a trailing "*" means it may be followed by anything.
type Pattern struct {
	Literal  string
	Leading  bool
	Trailing bool
}

// Match reports whether s matches the pattern. Matching is case-sensitive.
//
//	"abc"   exact match
//	"*abc"  ends with
//	"abc*"  starts with
//	"*abc*" contains
func (p Pattern) Match(s string) bool {
	switch {
	case p.Leading && p.Trailing:
		return strings.Contains(s, p.Literal)
	case p.Leading:
		return strings.HasSuffix(s, p.Literal)
	case p.Trailing:
		return strings.HasPrefix(s, p.Literal)
	default:
		return s == p.Literal
	}
}

// String returns the wire form of the pattern.
func (p Pattern) String() string {
	var b strings.Builder
	if p.Leading {
		b.WriteByte('*')
	}
	b.WriteString(p.Literal)
	if p.Trailing {
		b.WriteByte('*')
	}
	return b.String()
}

// Query is a validated query.
//
// DatasetID is the single dataset every field reference in the query
// resolves to. Where is nil for the empty WHERE. Transformations is nil when
// the query does no grouping.
type Query struct {
	DatasetID       string
	Where           Predicate
	Options         Options
	Transformations *Transformations
}

// Column is one entry of COLUMNS: either a field reference or, when the
// query has TRANSFORMATIONS, an APPLY alias.
type Column struct {
	Name    string     // Output column name exactly as written in the query
	Key     schema.Key // Parsed reference (zero when IsAlias)
	IsAlias bool
}

// Options holds the projection and ordering of a query.
type Options struct {
	Columns []Column
	Order   *Order // nil = no sort
}

// Direction is the sort direction of a multi-key ORDER.
type Direction string

const (
	DirUp   Direction = "UP"
	DirDown Direction = "DOWN"
)

// Order is the normalized ORDER clause. A single-key ORDER string becomes
// Order{Dir: DirUp, Keys: []string{key}}.
type Order struct {
	Dir  Direction
	Keys []string // Column names, each present in COLUMNS
}

// AggOp is an APPLY aggregate operation.
type AggOp string

const (
	AggMax   AggOp = "MAX"
	AggMin   AggOp = "MIN"
	AggAvg   AggOp = "AVG"
	AggSum   AggOp = "SUM"
	AggCount AggOp = "COUNT"
)

// Numeric reports whether the operation requires an m-field.
func (op AggOp) Numeric() bool {
	return op != AggCount
}

// ApplyRule is one named aggregate computation.
//
// Example:
//
//	{"avgGrade": {"AVG": "sections_avg"}}
//
// becomes
//
//	ApplyRule{Alias: "avgGrade", Op: AggAvg, Key: schema.Key{DatasetID: "sections", Field: "avg"}}
type ApplyRule struct {
	Alias string
	Op    AggOp
	Key   schema.Key
}

// Transformations holds the GROUP and APPLY clauses.
type Transformations struct {
	Group []schema.Key
	Apply []ApplyRule
}

// GroupFields returns the bare field names of the GROUP keys.
func (t *Transformations) GroupFields() []string {
	fields := make([]string, len(t.Group))
	for i, k := range t.Group {
		fields[i] = k.Field
	}
	return fields
}
