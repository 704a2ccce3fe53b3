package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/insight/internal/aggregate"
	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/queryir"
	"github.com/roach88/insight/internal/schema"
)

func col(ref string) queryir.Column {
	k, err := schema.ParseKey(ref)
	if err != nil {
		panic(err)
	}
	return queryir.Column{Name: ref, Key: k}
}

func alias(name string) queryir.Column {
	return queryir.Column{Name: name, IsAlias: true}
}

func row(cols []string, vals ...ir.Value) ir.Row {
	return ir.Row{Columns: cols, Values: vals}
}

func TestRecords(t *testing.T) {
	records := []ir.Record{
		{Dataset: "sections", Fields: map[string]ir.Value{"dept": ir.String("cpsc"), "avg": ir.Number(80), "year": ir.Number(2015)}},
		{Dataset: "sections", Fields: map[string]ir.Value{"dept": ir.String("math"), "avg": ir.Number(90), "year": ir.Number(2016)}},
	}

	rows, err := Records(records, []queryir.Column{col("sections_avg"), col("sections_dept")})
	require.NoError(t, err)

	cols := []string{"sections_avg", "sections_dept"}
	assert.Equal(t, []ir.Row{
		row(cols, ir.Number(80), ir.String("cpsc")),
		row(cols, ir.Number(90), ir.String("math")),
	}, rows)
}

func TestRecords_MissingField(t *testing.T) {
	_, err := Records([]ir.Record{{Fields: map[string]ir.Value{}}}, []queryir.Column{col("sections_avg")})
	assert.ErrorContains(t, err, `missing field "avg"`)
}

func TestGroups(t *testing.T) {
	tr := &queryir.Transformations{
		Group: []schema.Key{{DatasetID: "sections", Field: "dept"}},
		Apply: []queryir.ApplyRule{
			{Alias: "avgGrade", Op: queryir.AggAvg, Key: schema.Key{DatasetID: "sections", Field: "avg"}},
			{Alias: "n", Op: queryir.AggCount, Key: schema.Key{DatasetID: "sections", Field: "uuid"}},
		},
	}
	groups := []aggregate.Group{
		{Values: []ir.Value{ir.String("CPSC")}},
		{Values: []ir.Value{ir.String("MATH")}},
	}
	aggs := [][]ir.Value{
		{ir.Number(85), ir.Number(2)},
		{ir.Number(70), ir.Number(1)},
	}

	// Column order follows COLUMNS, not GROUP/APPLY order.
	rows, err := Groups(groups, aggs, tr, []queryir.Column{alias("n"), col("sections_dept"), alias("avgGrade")})
	require.NoError(t, err)

	cols := []string{"n", "sections_dept", "avgGrade"}
	assert.Equal(t, []ir.Row{
		row(cols, ir.Number(2), ir.String("CPSC"), ir.Number(85)),
		row(cols, ir.Number(1), ir.String("MATH"), ir.Number(70)),
	}, rows)
}

func TestGroups_Mismatch(t *testing.T) {
	tr := &queryir.Transformations{Group: []schema.Key{{DatasetID: "sections", Field: "dept"}}}

	_, err := Groups([]aggregate.Group{{}}, nil, tr, []queryir.Column{col("sections_dept")})
	assert.Error(t, err)

	_, err = Groups(nil, nil, tr, []queryir.Column{alias("missing")})
	assert.ErrorContains(t, err, "neither a GROUP key nor an APPLY key")
}

func names(rows []ir.Row, column string) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		v, _ := r.Get(column)
		out[i] = ir.ToAny(v)
	}
	return out
}

func TestSort_SingleKeyAscending(t *testing.T) {
	cols := []string{"sections_avg"}
	rows := []ir.Row{row(cols, ir.Number(90)), row(cols, ir.Number(70)), row(cols, ir.Number(80))}

	require.NoError(t, Sort(rows, &queryir.Order{Dir: queryir.DirUp, Keys: cols}))
	assert.Equal(t, []any{70.0, 80.0, 90.0}, names(rows, "sections_avg"))
}

func TestSort_Descending(t *testing.T) {
	cols := []string{"sections_avg"}
	rows := []ir.Row{row(cols, ir.Number(70)), row(cols, ir.Number(90)), row(cols, ir.Number(80))}

	require.NoError(t, Sort(rows, &queryir.Order{Dir: queryir.DirDown, Keys: cols}))
	assert.Equal(t, []any{90.0, 80.0, 70.0}, names(rows, "sections_avg"))
}

func TestSort_LocaleAwareStrings(t *testing.T) {
	cols := []string{"rooms_name"}
	rows := []ir.Row{
		row(cols, ir.String("cherry")),
		row(cols, ir.String("Banana")),
		row(cols, ir.String("apple")),
	}

	require.NoError(t, Sort(rows, &queryir.Order{Dir: queryir.DirUp, Keys: cols}))
	// Byte order would put "Banana" first.
	assert.Equal(t, []any{"apple", "Banana", "cherry"}, names(rows, "rooms_name"))
}

func TestSort_TieBreakAndStability(t *testing.T) {
	cols := []string{"dept", "avg", "id"}
	rows := []ir.Row{
		row(cols, ir.String("b"), ir.Number(1), ir.String("r0")),
		row(cols, ir.String("a"), ir.Number(2), ir.String("r1")),
		row(cols, ir.String("a"), ir.Number(1), ir.String("r2")),
		row(cols, ir.String("b"), ir.Number(1), ir.String("r3")),
		row(cols, ir.String("a"), ir.Number(1), ir.String("r4")),
	}

	require.NoError(t, Sort(rows, &queryir.Order{Dir: queryir.DirUp, Keys: []string{"dept", "avg"}}))
	assert.Equal(t, []any{"r2", "r4", "r1", "r0", "r3"}, names(rows, "id"))

	require.NoError(t, Sort(rows, &queryir.Order{Dir: queryir.DirDown, Keys: []string{"dept", "avg"}}))
	// Ties keep the order they had going in.
	assert.Equal(t, []any{"r0", "r3", "r1", "r2", "r4"}, names(rows, "id"))
}

func TestSort_NumbersBeforeStrings(t *testing.T) {
	cols := []string{"v"}
	rows := []ir.Row{row(cols, ir.String("10")), row(cols, ir.Number(99)), row(cols, ir.Number(-1))}

	require.NoError(t, Sort(rows, &queryir.Order{Dir: queryir.DirUp, Keys: cols}))
	assert.Equal(t, []any{-1.0, 99.0, "10"}, names(rows, "v"))
}

func TestSort_NilOrderIsNoop(t *testing.T) {
	cols := []string{"v"}
	rows := []ir.Row{row(cols, ir.Number(2)), row(cols, ir.Number(1))}

	require.NoError(t, Sort(rows, nil))
	assert.Equal(t, []any{2.0, 1.0}, names(rows, "v"))
}

func TestSort_UnknownKey(t *testing.T) {
	rows := []ir.Row{row([]string{"v"}, ir.Number(1))}
	assert.Error(t, Sort(rows, &queryir.Order{Dir: queryir.DirUp, Keys: []string{"w"}}))
}
