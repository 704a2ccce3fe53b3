package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/insight/internal/schema"
)

func TestPredicate_SealedInterface(t *testing.T) {
	key := schema.Key{DatasetID: "sections", Field: "avg"}
	predicates := []Predicate{
		And{},
		Or{},
		Not{Predicate: Compare{Op: OpGT, Key: key, Value: 1}},
		Is{Key: schema.Key{DatasetID: "sections", Field: "dept"}, Pattern: Pattern{Literal: "cpsc"}},
		Compare{Op: OpEQ, Key: key, Value: 90},
	}

	for _, p := range predicates {
		// Type switch is exhaustive - compiler knows all types
		switch p.(type) {
		case And, Or, Not, Is, Compare:
			// OK
		default:
			t.Fatal("unexpected predicate type")
		}
	}
}

func TestPattern_Match(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"cpsc", "cpsc", true},
		{"cpsc", "cpsc1", false},
		{"cpsc", "CPSC", false},
		{"cp*", "cpsc", true},
		{"cp*", "math", false},
		{"*sc", "cpsc", true},
		{"*sc", "scx", false},
		{"*ps*", "cpsc", true},
		{"*ps*", "math", false},
		{"*", "anything", true},
		{"*", "", true},
		{"**", "anything", true},
		{"", "", true},
		{"", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			p, err := ParsePattern(tt.pattern)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.input))
		})
	}
}

func TestParsePattern_InteriorWildcard(t *testing.T) {
	for _, s := range []string{"c*sc", "*c*sc", "c*s*", "***"} {
		_, err := ParsePattern(s)
		assert.Error(t, err, "pattern %q", s)
	}
}

func TestPattern_String(t *testing.T) {
	for _, s := range []string{"abc", "*abc", "abc*", "*abc*"} {
		p, err := ParsePattern(s)
		assert.NoError(t, err)
		assert.Equal(t, s, p.String())
	}
}

func TestAggOp_Numeric(t *testing.T) {
	assert.True(t, AggMax.Numeric())
	assert.True(t, AggAvg.Numeric())
	assert.False(t, AggCount.Numeric())
}

func TestTransformations_GroupFields(t *testing.T) {
	tr := &Transformations{Group: []schema.Key{
		{DatasetID: "rooms", Field: "shortname"},
		{DatasetID: "rooms", Field: "type"},
	}}
	assert.Equal(t, []string{"shortname", "type"}, tr.GroupFields())
}
