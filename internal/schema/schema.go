package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies a record kind. Every dataset holds records of one kind.
type Kind string

const (
	KindSections Kind = "sections"
	KindRooms    Kind = "rooms"
)

// Kinds lists the supported record kinds.
var Kinds = []Kind{KindSections, KindRooms}

// ParseKind converts a user-supplied kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("unknown dataset kind %q: must be one of %v", s, Kinds)
	}
	return k, nil
}

// FieldKind says whether a field is numeric (m-field) or string (s-field).
type FieldKind int

const (
	FieldNumeric FieldKind = iota + 1
	FieldString
)

func (k FieldKind) String() string {
	switch k {
	case FieldNumeric:
		return "m-field"
	case FieldString:
		return "s-field"
	default:
		return "unknown"
	}
}

// Schema is the static set of queryable fields for one record kind.
type Schema struct {
	Kind    Kind
	MFields []string
	SFields []string
}

var (
	sections = Schema{
		Kind:    KindSections,
		MFields: []string{"year", "avg", "pass", "fail", "audit"},
		SFields: []string{"uuid", "id", "title", "instructor", "dept"},
	}
	rooms = Schema{
		Kind:    KindRooms,
		MFields: []string{"lat", "lon", "seats"},
		SFields: []string{"fullname", "shortname", "number", "name", "address", "type", "furniture", "href"},
	}
)

// For returns the schema of a record kind.
func For(kind Kind) (Schema, error) {
	switch kind {
	case KindSections:
		return sections, nil
	case KindRooms:
		return rooms, nil
	default:
		return Schema{}, fmt.Errorf("no schema for dataset kind %q", kind)
	}
}

// FieldKind reports the kind of a field, and false if the schema lacks it.
func (s Schema) FieldKind(field string) (FieldKind, bool) {
	if slices.Contains(s.MFields, field) {
		return FieldNumeric, true
	}
	if slices.Contains(s.SFields, field) {
		return FieldString, true
	}
	return 0, false
}

// Fields returns every field name, m-fields first.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s.MFields)+len(s.SFields))
	out = append(out, s.MFields...)
	return append(out, s.SFields...)
}
