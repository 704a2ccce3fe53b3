package queryir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/insight/internal/schema"
)

// ValidationError describes why a query was rejected.
type ValidationError struct {
	// Path locates the offending node, e.g. "WHERE.AND[1].IS".
	// Empty for errors that concern the query as a whole.
	Path string

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

func invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// SchemaLookup resolves the schema of the records stored under a dataset id.
// The engine implements it on top of the store's catalog.
type SchemaLookup interface {
	SchemaFor(ctx context.Context, datasetID string) (schema.Schema, error)
}

// Validate parses a wire query, resolves its single dataset id, and checks
// every field reference against that dataset's schema.
//
// Errors from Parse and Check are *ValidationError. Errors from the lookup
// (e.g. an unknown dataset id) are returned unchanged so the caller can
// tell them apart.
func Validate(ctx context.Context, data []byte, lookup SchemaLookup) (*Query, error) {
	q, err := Parse(data)
	if err != nil {
		return nil, err
	}

	s, err := lookup.SchemaFor(ctx, q.DatasetID)
	if err != nil {
		return nil, err
	}

	if err := Check(q, s); err != nil {
		return nil, err
	}
	return q, nil
}

// Parse decodes and structurally validates a wire query.
//
// Parse enforces the grammar, wildcard placement, field reference shape,
// alias uniqueness and scoping, ORDER scoping, and the single-dataset rule.
// It does not know field kinds; Check does that once the dataset's schema
// is known.
//
// Parse is a pure function with no side effects.
func Parse(data []byte) (*Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, invalid("", "query is not valid JSON: %v", err)
	}
	if dec.More() {
		return nil, invalid("", "unexpected data after query object")
	}

	return ParseValue(raw)
}

// ParseValue validates a query that has already been decoded into Go values
// (maps, slices, strings, numbers), e.g. from YAML test scenarios.
func ParseValue(raw any) (*Query, error) {
	p := &parser{}
	return p.query(raw)
}

// parser accumulates the dataset ids referenced during traversal.
type parser struct {
	datasets []string
}

var topLevelKeys = []string{"WHERE", "OPTIONS", "TRANSFORMATIONS"}

func (p *parser) query(raw any) (*Query, error) {
	top, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("", "query must be a JSON object")
	}

	for _, k := range sortedKeys(top) {
		if !slices.Contains(topLevelKeys, k) {
			return nil, invalid("", "invalid top-level key %q", k)
		}
	}

	whereRaw, ok := top["WHERE"]
	if !ok {
		return nil, invalid("", "query is missing WHERE")
	}
	optsRaw, ok := top["OPTIONS"]
	if !ok {
		return nil, invalid("", "query is missing OPTIONS")
	}

	where, err := p.where(whereRaw)
	if err != nil {
		return nil, err
	}

	// TRANSFORMATIONS is parsed before OPTIONS because it decides which
	// names COLUMNS may use.
	var tr *Transformations
	if trRaw, ok := top["TRANSFORMATIONS"]; ok {
		tr, err = p.transformations(trRaw)
		if err != nil {
			return nil, err
		}
	}

	opts, err := p.options(optsRaw, tr)
	if err != nil {
		return nil, err
	}

	switch len(p.datasets) {
	case 0:
		return nil, invalid("", "query references no dataset")
	case 1:
	default:
		return nil, invalid("", "query references multiple datasets: %s", strings.Join(p.datasets, ", "))
	}

	return &Query{
		DatasetID:       p.datasets[0],
		Where:           where,
		Options:         opts,
		Transformations: tr,
	}, nil
}

// key parses a field reference and records its dataset id.
func (p *parser) key(path string, raw any) (schema.Key, error) {
	ref, ok := raw.(string)
	if !ok {
		return schema.Key{}, invalid(path, "field reference must be a string, got %s", describe(raw))
	}
	k, err := schema.ParseKey(ref)
	if err != nil {
		return schema.Key{}, invalid(path, "%v", err)
	}
	if !slices.Contains(p.datasets, k.DatasetID) {
		p.datasets = append(p.datasets, k.DatasetID)
	}
	return k, nil
}

func (p *parser) where(raw any) (Predicate, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("WHERE", "must be an object, got %s", describe(raw))
	}
	switch len(obj) {
	case 0:
		return nil, nil // {} matches everything
	case 1:
		return p.filter("WHERE", obj)
	default:
		return nil, invalid("WHERE", "must have at most one filter, found %d", len(obj))
	}
}

// filter validates one predicate node and recurses into its children.
// Any invalid child invalidates the whole node.
func (p *parser) filter(path string, raw any) (Predicate, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid(path, "filter must be an object, got %s", describe(raw))
	}
	if len(obj) != 1 {
		return nil, invalid(path, "filter must have exactly one key, found %d", len(obj))
	}

	var keyword string
	var val any
	for k, v := range obj {
		keyword, val = k, v
	}
	sub := path + "." + keyword

	switch keyword {
	case "AND", "OR":
		arr, ok := val.([]any)
		if !ok {
			return nil, invalid(sub, "must be an array, got %s", describe(val))
		}
		if len(arr) == 0 {
			return nil, invalid(sub, "must be a non-empty array")
		}
		children := make([]Predicate, len(arr))
		for i, elem := range arr {
			child, err := p.filter(fmt.Sprintf("%s[%d]", sub, i), elem)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		if keyword == "AND" {
			return And{Predicates: children}, nil
		}
		return Or{Predicates: children}, nil

	case "NOT":
		child, err := p.filter(sub, val)
		if err != nil {
			return nil, err
		}
		return Not{Predicate: child}, nil

	case "IS":
		ref, v, err := single(sub, val)
		if err != nil {
			return nil, err
		}
		k, err := p.key(sub, ref)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, invalid(sub, "value for %s must be a string, got %s", ref, describe(v))
		}
		pattern, err := ParsePattern(s)
		if err != nil {
			return nil, invalid(sub, "%v", err)
		}
		return Is{Key: k, Pattern: pattern}, nil

	case "LT", "GT", "EQ":
		ref, v, err := single(sub, val)
		if err != nil {
			return nil, err
		}
		k, err := p.key(sub, ref)
		if err != nil {
			return nil, err
		}
		n, ok := toNumber(v)
		if !ok {
			return nil, invalid(sub, "value for %s must be a number, got %s", ref, describe(v))
		}
		return Compare{Op: Op(keyword), Key: k, Value: n}, nil

	default:
		return nil, invalid(path, "invalid filter key %q", keyword)
	}
}

// ParsePattern validates an IS pattern. A "*" may appear only as the first
// and/or last character.
func ParsePattern(s string) (Pattern, error) {
	var p Pattern
	lit := s
	if strings.HasPrefix(lit, "*") {
		p.Leading = true
		lit = lit[1:]
	}
	if strings.HasSuffix(lit, "*") {
		p.Trailing = true
		lit = lit[:len(lit)-1]
	}
	if strings.Contains(lit, "*") {
		return Pattern{}, fmt.Errorf("asterisks may only appear at the start or end of %q", s)
	}
	p.Literal = lit
	return p, nil
}

func (p *parser) transformations(raw any) (*Transformations, error) {
	const path = "TRANSFORMATIONS"
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid(path, "must be an object, got %s", describe(raw))
	}
	for _, k := range sortedKeys(obj) {
		if k != "GROUP" && k != "APPLY" {
			return nil, invalid(path, "invalid key %q", k)
		}
	}

	groupRaw, ok := obj["GROUP"]
	if !ok {
		return nil, invalid(path, "missing GROUP")
	}
	applyRaw, ok := obj["APPLY"]
	if !ok {
		return nil, invalid(path, "missing APPLY")
	}

	groupArr, ok := groupRaw.([]any)
	if !ok || len(groupArr) == 0 {
		return nil, invalid(path+".GROUP", "must be a non-empty array")
	}
	tr := &Transformations{Group: make([]schema.Key, len(groupArr))}
	for i, g := range groupArr {
		k, err := p.key(fmt.Sprintf("%s.GROUP[%d]", path, i), g)
		if err != nil {
			return nil, err
		}
		tr.Group[i] = k
	}

	applyArr, ok := applyRaw.([]any)
	if !ok {
		return nil, invalid(path+".APPLY", "must be an array, got %s", describe(applyRaw))
	}
	seen := make(map[string]bool, len(applyArr))
	for i, elem := range applyArr {
		rulePath := fmt.Sprintf("%s.APPLY[%d]", path, i)
		alias, body, err := single(rulePath, elem)
		if err != nil {
			return nil, err
		}
		if alias == "" {
			return nil, invalid(rulePath, "apply key cannot be empty")
		}
		if strings.Contains(alias, "_") {
			return nil, invalid(rulePath, "apply key %q cannot contain underscore", alias)
		}
		if seen[alias] {
			return nil, invalid(rulePath, "duplicate APPLY key %q", alias)
		}
		seen[alias] = true

		opName, fieldRaw, err := single(rulePath+"."+alias, body)
		if err != nil {
			return nil, err
		}
		op := AggOp(opName)
		switch op {
		case AggMax, AggMin, AggAvg, AggSum, AggCount:
		default:
			return nil, invalid(rulePath+"."+alias, "invalid APPLY token %q", opName)
		}
		k, err := p.key(rulePath+"."+alias+"."+opName, fieldRaw)
		if err != nil {
			return nil, err
		}
		tr.Apply = append(tr.Apply, ApplyRule{Alias: alias, Op: op, Key: k})
	}

	return tr, nil
}

func (p *parser) options(raw any, tr *Transformations) (Options, error) {
	const path = "OPTIONS"
	obj, ok := raw.(map[string]any)
	if !ok {
		return Options{}, invalid(path, "must be an object, got %s", describe(raw))
	}
	for _, k := range sortedKeys(obj) {
		if k != "COLUMNS" && k != "ORDER" {
			return Options{}, invalid(path, "invalid key %q", k)
		}
	}

	colsRaw, ok := obj["COLUMNS"]
	if !ok {
		return Options{}, invalid(path, "missing COLUMNS")
	}
	colsArr, ok := colsRaw.([]any)
	if !ok || len(colsArr) == 0 {
		return Options{}, invalid(path+".COLUMNS", "must be a non-empty array")
	}

	var opts Options
	names := make([]string, 0, len(colsArr))
	for i, c := range colsArr {
		colPath := fmt.Sprintf("%s.COLUMNS[%d]", path, i)
		col, err := p.column(colPath, c, tr)
		if err != nil {
			return Options{}, err
		}
		opts.Columns = append(opts.Columns, col)
		names = append(names, col.Name)
	}

	if orderRaw, ok := obj["ORDER"]; ok {
		order, err := parseOrder(path+".ORDER", orderRaw, names)
		if err != nil {
			return Options{}, err
		}
		opts.Order = order
	}

	return opts, nil
}

// column resolves one COLUMNS entry. With TRANSFORMATIONS present only GROUP
// keys and APPLY aliases are in scope.
func (p *parser) column(path string, raw any, tr *Transformations) (Column, error) {
	name, ok := raw.(string)
	if !ok {
		return Column{}, invalid(path, "column must be a string, got %s", describe(raw))
	}

	if tr == nil {
		k, err := p.key(path, name)
		if err != nil {
			return Column{}, err
		}
		return Column{Name: name, Key: k}, nil
	}

	for _, rule := range tr.Apply {
		if rule.Alias == name {
			return Column{Name: name, IsAlias: true}, nil
		}
	}
	for _, k := range tr.Group {
		if k.String() == name {
			return Column{Name: name, Key: k}, nil
		}
	}
	return Column{}, invalid(path, "%q must be a GROUP key or an APPLY key when TRANSFORMATIONS is present", name)
}

func parseOrder(path string, raw any, columns []string) (*Order, error) {
	switch v := raw.(type) {
	case string:
		if !slices.Contains(columns, v) {
			return nil, invalid(path, "ORDER key %q must be in COLUMNS", v)
		}
		return &Order{Dir: DirUp, Keys: []string{v}}, nil

	case map[string]any:
		for _, k := range sortedKeys(v) {
			if k != "dir" && k != "keys" {
				return nil, invalid(path, "invalid key %q", k)
			}
		}
		dirRaw, ok := v["dir"]
		if !ok {
			return nil, invalid(path, "missing dir")
		}
		dir, _ := dirRaw.(string)
		if Direction(dir) != DirUp && Direction(dir) != DirDown {
			return nil, invalid(path+".dir", "must be UP or DOWN, got %s", describe(dirRaw))
		}
		keysRaw, ok := v["keys"]
		if !ok {
			return nil, invalid(path, "missing keys")
		}
		keysArr, ok := keysRaw.([]any)
		if !ok || len(keysArr) == 0 {
			return nil, invalid(path+".keys", "must be a non-empty array")
		}
		order := &Order{Dir: Direction(dir), Keys: make([]string, len(keysArr))}
		for i, k := range keysArr {
			name, ok := k.(string)
			if !ok {
				return nil, invalid(fmt.Sprintf("%s.keys[%d]", path, i), "must be a string, got %s", describe(k))
			}
			if !slices.Contains(columns, name) {
				return nil, invalid(fmt.Sprintf("%s.keys[%d]", path, i), "ORDER key %q must be in COLUMNS", name)
			}
			order.Keys[i] = name
		}
		return order, nil

	default:
		return nil, invalid(path, "must be a string or an object, got %s", describe(raw))
	}
}

// Check verifies every field reference of a parsed query against the
// schema of its dataset: IS needs an s-field, LT/GT/EQ need an m-field,
// MAX/MIN/AVG/SUM need an m-field, COUNT and COLUMNS/GROUP accept either.
func Check(q *Query, s schema.Schema) error {
	if err := checkPredicate("WHERE", q.Where, s); err != nil {
		return err
	}

	for i, col := range q.Options.Columns {
		if col.IsAlias {
			continue
		}
		if _, ok := s.FieldKind(col.Key.Field); !ok {
			return invalid(fmt.Sprintf("OPTIONS.COLUMNS[%d]", i), "unknown %s field %q", s.Kind, col.Key.Field)
		}
	}

	if q.Transformations == nil {
		return nil
	}
	for i, k := range q.Transformations.Group {
		if _, ok := s.FieldKind(k.Field); !ok {
			return invalid(fmt.Sprintf("TRANSFORMATIONS.GROUP[%d]", i), "unknown %s field %q", s.Kind, k.Field)
		}
	}
	for i, rule := range q.Transformations.Apply {
		path := fmt.Sprintf("TRANSFORMATIONS.APPLY[%d].%s", i, rule.Alias)
		kind, ok := s.FieldKind(rule.Key.Field)
		if !ok {
			return invalid(path, "unknown %s field %q", s.Kind, rule.Key.Field)
		}
		if rule.Op.Numeric() && kind != schema.FieldNumeric {
			return invalid(path, "%s requires an m-field, %s is an %s", rule.Op, rule.Key, kind)
		}
	}
	return nil
}

func checkPredicate(path string, p Predicate, s schema.Schema) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case And:
		for i, child := range pred.Predicates {
			if err := checkPredicate(fmt.Sprintf("%s.AND[%d]", path, i), child, s); err != nil {
				return err
			}
		}
		return nil
	case Or:
		for i, child := range pred.Predicates {
			if err := checkPredicate(fmt.Sprintf("%s.OR[%d]", path, i), child, s); err != nil {
				return err
			}
		}
		return nil
	case Not:
		return checkPredicate(path+".NOT", pred.Predicate, s)
	case Is:
		return checkFieldKind(path+".IS", pred.Key, schema.FieldString, s)
	case Compare:
		return checkFieldKind(path+"."+string(pred.Op), pred.Key, schema.FieldNumeric, s)
	default:
		return invalid(path, "unknown predicate type %T", p)
	}
}

func checkFieldKind(path string, k schema.Key, want schema.FieldKind, s schema.Schema) error {
	kind, ok := s.FieldKind(k.Field)
	if !ok {
		return invalid(path, "unknown %s field %q", s.Kind, k.Field)
	}
	if kind != want {
		return invalid(path, "%s requires an %s, %s is an %s", path[strings.LastIndex(path, ".")+1:], want, k, kind)
	}
	return nil
}

// single unpacks a single-key object such as {"sections_avg": 85}.
func single(path string, raw any) (string, any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return "", nil, invalid(path, "must be an object, got %s", describe(raw))
	}
	if len(obj) != 1 {
		return "", nil, invalid(path, "must have exactly one key, found %d", len(obj))
	}
	for k, v := range obj {
		return k, v, nil
	}
	return "", nil, nil // unreachable
}

// toNumber accepts JSON numbers (json.Number under UseNumber) and the
// numeric types produced by YAML or plain json decoding.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		if _, ok := toNumber(v); ok {
			return "a number"
		}
		return fmt.Sprintf("%T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
