package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/insight/internal/aggregate"
	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
	"github.com/roach88/insight/internal/store"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	kinds   map[string]schema.Kind
	records map[string][]ir.Record
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{kinds: map[string]schema.Kind{}, records: map[string][]ir.Record{}}
}

func (m *memStore) add(id string, kind schema.Kind, records ...ir.Record) {
	m.kinds[id] = kind
	m.records[id] = records
}

func (m *memStore) Snapshot(_ context.Context, id string) (*store.Snapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	k, ok := m.kinds[id]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", id, store.ErrDatasetNotFound)
	}
	recs := m.records[id]
	return &store.Snapshot{
		Dataset: store.Dataset{ID: id, Kind: k, NumRows: len(recs)},
		Records: recs,
	}, nil
}

// swappingStore replaces its dataset with one of another kind after every
// read, as a concurrent remove and re-add under the same id would.
type swappingStore struct {
	snapshots []*store.Snapshot
	reads     int
}

func (s *swappingStore) Snapshot(_ context.Context, _ string) (*store.Snapshot, error) {
	snap := s.snapshots[s.reads%len(s.snapshots)]
	s.reads++
	return snap, nil
}

func section(fields map[string]any) ir.Record {
	r, err := ir.NewRecord("sections", fields)
	if err != nil {
		panic(err)
	}
	return r
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(s Store, opts ...Option) *Engine {
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithQueryIDGenerator(NewSequenceGenerator("q")),
	}, opts...)
	return New(s, opts...)
}

func resultJSON(t *testing.T, rows []ir.Row) string {
	t.Helper()
	b, err := json.Marshal(rows)
	require.NoError(t, err)
	return string(b)
}

func TestExecute_FilterAndOrder(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections,
		section(map[string]any{"id": "x", "avg": 80}),
		section(map[string]any{"id": "x2", "avg": 90}),
	)
	e := newTestEngine(s)

	rows, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {"GT": {"sections_avg": 85}},
		"OPTIONS": {"COLUMNS": ["sections_avg"], "ORDER": "sections_avg"}
	}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"sections_avg": 90}]`, resultJSON(t, rows))
}

func TestExecute_GroupAverage(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections,
		section(map[string]any{"dept": "CPSC", "avg": 80}),
		section(map[string]any{"dept": "CPSC", "avg": 90}),
	)
	e := newTestEngine(s)

	rows, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_dept", "avgGrade"]},
		"TRANSFORMATIONS": {"GROUP": ["sections_dept"], "APPLY": [{"avgGrade": {"AVG": "sections_avg"}}]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, `[{"sections_dept":"CPSC","avgGrade":85}]`, resultJSON(t, rows))
}

func TestExecute_GroupingMatchesIsEquality(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections,
		section(map[string]any{"uuid": "1", "title": "caf\u00e9"}),
		section(map[string]any{"uuid": "2", "title": "cafe\u0301"}),
	)
	e := newTestEngine(s)

	rows, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_title", "n"]},
		"TRANSFORMATIONS": {"GROUP": ["sections_title"], "APPLY": [{"n": {"COUNT": "sections_uuid"}}]}
	}`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "[{\"sections_title\":\"caf\u00e9\",\"n\":1},{\"sections_title\":\"cafe\u0301\",\"n\":1}]", resultJSON(t, rows))

	rows, err = e.Execute(context.Background(), []byte(`{
		"WHERE": {"IS": {"sections_title": "caf\u00e9"}},
		"OPTIONS": {"COLUMNS": ["sections_uuid"]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, `[{"sections_uuid":"1"}]`, resultJSON(t, rows))
}

func TestExecute_SchemaAndRecordsFromOneSnapshot(t *testing.T) {
	sections := &store.Snapshot{
		Dataset: store.Dataset{ID: "ubc", Kind: schema.KindSections, NumRows: 1},
		Records: []ir.Record{mustRecord(t, "ubc", map[string]any{"dept": "cpsc", "avg": 90})},
	}
	rooms := &store.Snapshot{
		Dataset: store.Dataset{ID: "ubc", Kind: schema.KindRooms, NumRows: 1},
		Records: []ir.Record{mustRecord(t, "ubc", map[string]any{"name": "DMP_110", "seats": 120})},
	}
	s := &swappingStore{snapshots: []*store.Snapshot{sections, rooms}}
	e := newTestEngine(s)

	rows, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {"GT": {"ubc_avg": 50}},
		"OPTIONS": {"COLUMNS": ["ubc_dept", "ubc_avg"]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, `[{"ubc_dept":"cpsc","ubc_avg":90}]`, resultJSON(t, rows))
	assert.Equal(t, 1, s.reads, "one store read per query")
}

func mustRecord(t *testing.T, dataset string, fields map[string]any) ir.Record {
	t.Helper()
	r, err := ir.NewRecord(dataset, fields)
	require.NoError(t, err)
	return r
}

func TestExecute_GroupedMultiKeyOrder(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections,
		section(map[string]any{"dept": "math", "year": 2015, "avg": 70, "uuid": "1"}),
		section(map[string]any{"dept": "cpsc", "year": 2015, "avg": 90, "uuid": "2"}),
		section(map[string]any{"dept": "cpsc", "year": 2016, "avg": 60, "uuid": "3"}),
		section(map[string]any{"dept": "cpsc", "year": 2015, "avg": 80, "uuid": "4"}),
		section(map[string]any{"dept": "math", "year": 2015, "avg": 70, "uuid": "5"}),
	)
	e := newTestEngine(s)

	rows, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {"NOT": {"LT": {"sections_avg": 65}}},
		"OPTIONS": {
			"COLUMNS": ["sections_dept", "maxAvg", "n", "total"],
			"ORDER": {"dir": "DOWN", "keys": ["maxAvg", "sections_dept"]}
		},
		"TRANSFORMATIONS": {
			"GROUP": ["sections_dept"],
			"APPLY": [
				{"maxAvg": {"MAX": "sections_avg"}},
				{"n": {"COUNT": "sections_avg"}},
				{"total": {"SUM": "sections_avg"}}
			]
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t,
		`[{"sections_dept":"cpsc","maxAvg":90,"n":2,"total":170},{"sections_dept":"math","maxAvg":70,"n":1,"total":140}]`,
		resultJSON(t, rows))
}

func TestExecute_EmptyResult(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections, section(map[string]any{"avg": 50}))
	e := newTestEngine(s)

	rows, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {"GT": {"sections_avg": 99}},
		"OPTIONS": {"COLUMNS": ["sections_avg"], "ORDER": "sections_avg"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultJSON(t, rows))
}

func sectionsN(n int) []ir.Record {
	out := make([]ir.Record, n)
	for i := range out {
		out[i] = section(map[string]any{"uuid": fmt.Sprint(i), "avg": 75, "dept": "cpsc"})
	}
	return out
}

func TestExecute_ResultCap(t *testing.T) {
	query := []byte(`{"WHERE": {"GT": {"sections_avg": 70}}, "OPTIONS": {"COLUMNS": ["sections_uuid"]}}`)

	t.Run("exactly at cap", func(t *testing.T) {
		s := newMemStore()
		s.add("sections", schema.KindSections, sectionsN(5000)...)

		rows, err := newTestEngine(s).Execute(context.Background(), query)
		require.NoError(t, err)
		assert.Len(t, rows, 5000)
	})

	t.Run("one over cap", func(t *testing.T) {
		s := newMemStore()
		s.add("sections", schema.KindSections, sectionsN(5001)...)

		_, err := newTestEngine(s).Execute(context.Background(), query)
		require.Error(t, err)
		assert.True(t, IsResultTooLarge(err), "got %v", err)

		var qe *QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "5001", qe.Details["matched"])
		assert.Equal(t, "sections", qe.DatasetID)
	})

	t.Run("cap applies before grouping", func(t *testing.T) {
		s := newMemStore()
		s.add("sections", schema.KindSections, sectionsN(5001)...)

		// Grouping would collapse to one row, but the filtered set is too large.
		_, err := newTestEngine(s).Execute(context.Background(), []byte(`{
			"WHERE": {},
			"OPTIONS": {"COLUMNS": ["sections_dept"]},
			"TRANSFORMATIONS": {"GROUP": ["sections_dept"], "APPLY": []}
		}`))
		assert.True(t, IsResultTooLarge(err), "got %v", err)
	})

	t.Run("custom cap", func(t *testing.T) {
		s := newMemStore()
		s.add("sections", schema.KindSections, sectionsN(11)...)

		_, err := newTestEngine(s, WithMaxResults(10)).Execute(context.Background(), query)
		assert.True(t, IsResultTooLarge(err))
	})
}

func TestExecute_Errors(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections, section(map[string]any{"avg": 80, "dept": "cpsc"}))
	s.add("rooms", schema.KindRooms)
	e := newTestEngine(s)

	tests := []struct {
		name  string
		query string
		check func(error) bool
	}{
		{"malformed json", `{"WHERE": `, IsInvalidQuery},
		{"multiple datasets", `{"WHERE": {"GT": {"a_avg": 1}}, "OPTIONS": {"COLUMNS": ["b_avg"]}}`, IsInvalidQuery},
		{"unknown field", `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_seats"]}}`, IsInvalidQuery},
		{"wrong field kind", `{"WHERE": {"IS": {"sections_avg": "8*"}}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}`, IsInvalidQuery},
		{"order outside columns", `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_avg"], "ORDER": "sections_dept"}}`, IsInvalidQuery},
		{"unknown dataset", `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["courses_avg"]}}`, IsDatasetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := e.Execute(context.Background(), []byte(tt.query))
			require.Error(t, err)
			assert.Nil(t, rows, "no partial result on failure")
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestExecute_ErrorKindsAreExclusive(t *testing.T) {
	s := newMemStore()
	e := newTestEngine(s)

	_, err := e.Execute(context.Background(), []byte(`{"WHERE": {}, "OPTIONS": {"COLUMNS": ["ghost_avg"]}}`))
	require.Error(t, err)
	assert.True(t, IsDatasetNotFound(err))
	assert.False(t, IsInvalidQuery(err))
	assert.False(t, IsResultTooLarge(err))
	assert.ErrorIs(t, err, store.ErrDatasetNotFound)
}

func TestExecute_NonNumericAggregateIsInvalidQuery(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections,
		section(map[string]any{"dept": "cpsc", "avg": 80}),
		section(map[string]any{"dept": "cpsc", "avg": "n/a"}),
	)
	e := newTestEngine(s)

	_, err := e.Execute(context.Background(), []byte(`{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_dept", "m"]},
		"TRANSFORMATIONS": {"GROUP": ["sections_dept"], "APPLY": [{"m": {"AVG": "sections_avg"}}]}
	}`))
	require.Error(t, err)
	assert.True(t, IsInvalidQuery(err), "got %v", err)
	assert.ErrorIs(t, err, aggregate.ErrNonNumeric)
}

func TestExecute_InternalStoreFailure(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections, section(map[string]any{"avg": 1}))
	s.loadErr = errors.New("disk on fire")
	e := newTestEngine(s)

	_, err := e.Execute(context.Background(), []byte(`{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}`))
	require.Error(t, err)
	var qe *QueryError
	assert.False(t, errors.As(err, &qe), "internal failures are not query errors")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExecute_Metrics(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections, section(map[string]any{"avg": 90}))

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := newTestEngine(s, WithMetrics(m))

	ok := []byte(`{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}`)
	_, err := e.Execute(context.Background(), ok)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), ok)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Queries.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues(string(ErrCodeInvalidQuery))))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Queries), "one series per outcome")
}

func TestExecute_ParallelAggregator(t *testing.T) {
	s := newMemStore()
	var records []ir.Record
	for i := 0; i < 900; i++ {
		records = append(records, section(map[string]any{"uuid": fmt.Sprint(i), "avg": i % 100}))
	}
	s.add("sections", schema.KindSections, records...)

	agg, err := aggregate.New(aggregate.WithWorkers(4), aggregate.WithParallelThreshold(8))
	require.NoError(t, err)
	defer agg.Close()

	query := []byte(`{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_uuid", "a"], "ORDER": "sections_uuid"},
		"TRANSFORMATIONS": {"GROUP": ["sections_uuid"], "APPLY": [{"a": {"AVG": "sections_avg"}}]}
	}`)

	parallel, err := newTestEngine(s, WithAggregator(agg)).Execute(context.Background(), query)
	require.NoError(t, err)
	inline, err := newTestEngine(s).Execute(context.Background(), query)
	require.NoError(t, err)

	assert.Len(t, parallel, 900)
	assert.Equal(t, inline, parallel)
}

func TestExecute_ConcurrentQueries(t *testing.T) {
	s := newMemStore()
	s.add("sections", schema.KindSections, sectionsN(200)...)
	e := newTestEngine(s)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := e.Execute(context.Background(), []byte(`{
				"WHERE": {"IS": {"sections_dept": "cp*"}},
				"OPTIONS": {"COLUMNS": ["sections_uuid"], "ORDER": {"dir": "DOWN", "keys": ["sections_uuid"]}}
			}`))
			assert.NoError(t, err)
			assert.Len(t, rows, 200)
		}()
	}
	wg.Wait()
}

func TestExecute_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer st.Close()

	var records []ir.Record
	for i, dept := range []string{"cpsc", "math", "cpsc"} {
		records = append(records, section(map[string]any{
			"uuid": fmt.Sprint(i), "id": "100", "title": "t", "instructor": "", "dept": dept,
			"year": 2015, "avg": 70 + 10*i, "pass": 1, "fail": 0, "audit": 0,
		}))
	}
	_, err = st.AddDataset(ctx, "ubc", schema.KindSections, records)
	require.NoError(t, err)

	e := newTestEngine(st)
	rows, err := e.Execute(ctx, []byte(`{
		"WHERE": {"IS": {"ubc_dept": "cpsc"}},
		"OPTIONS": {"COLUMNS": ["ubc_uuid", "ubc_avg"], "ORDER": {"dir": "DOWN", "keys": ["ubc_avg"]}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, `[{"ubc_uuid":"2","ubc_avg":90},{"ubc_uuid":"0","ubc_avg":70}]`, resultJSON(t, rows))

	require.NoError(t, st.RemoveDataset(ctx, "ubc"))
	_, err = e.Execute(ctx, []byte(`{"WHERE": {}, "OPTIONS": {"COLUMNS": ["ubc_avg"]}}`))
	assert.True(t, IsDatasetNotFound(err), "got %v", err)
}

func TestQueryError_Error(t *testing.T) {
	err := NewResultTooLargeError("q-1", "ubc", 6000, 5000)
	assert.Equal(t, "RESULT_TOO_LARGE: query matched 6000 rows, limit is 5000 (dataset=ubc)", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsResultTooLarge(wrapped))
	assert.False(t, IsInvalidQuery(wrapped))
	assert.False(t, IsDatasetNotFound(errors.New("plain")))
}
