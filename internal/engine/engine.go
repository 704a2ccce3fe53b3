package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/insight/internal/aggregate"
	"github.com/roach88/insight/internal/filter"
	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/project"
	"github.com/roach88/insight/internal/queryir"
	"github.com/roach88/insight/internal/schema"
	"github.com/roach88/insight/internal/store"
)

// DefaultMaxResults is the largest filtered set a query may produce.
const DefaultMaxResults = 5000

// Store is the read side of the dataset catalog the engine queries.
// *store.Store implements it. Lookups of an unknown id must return an error
// wrapping store.ErrDatasetNotFound.
//
// A query reads its dataset through exactly one Snapshot, so the schema it
// is validated against and the records it runs over always agree.
type Store interface {
	Snapshot(ctx context.Context, datasetID string) (*store.Snapshot, error)
}

// Engine executes queries against the datasets of a Store.
//
// Execute runs a linear pipeline:
//
//	parse -> snapshot -> check -> filter -> cap check -> [group -> apply] -> project -> sort
//
// The engine holds no per-query state; Execute is safe for concurrent use.
// Records are never mutated, so concurrent queries can share snapshots.
type Engine struct {
	store      Store
	maxResults int
	logger     *slog.Logger
	metrics    *Metrics
	agg        *aggregate.Aggregator
	ids        QueryIDGenerator
	sorter     *project.Sorter
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithMaxResults sets the result cap.
//
// Default: 5000 rows (DefaultMaxResults)
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		e.maxResults = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithAggregator sets the APPLY aggregator, e.g. one backed by a worker
// pool. The caller keeps ownership and closes it.
func WithAggregator(a *aggregate.Aggregator) Option {
	return func(e *Engine) {
		e.agg = a
	}
}

// WithQueryIDGenerator sets the query id generator. Default: UUIDv7Generator.
func WithQueryIDGenerator(g QueryIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithSorter sets the sorter used for ORDER. Default: English collation.
func WithSorter(s *project.Sorter) Option {
	return func(e *Engine) {
		e.sorter = s
	}
}

// New creates an Engine over the given store.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		maxResults: DefaultMaxResults,
		logger:     slog.Default(),
		ids:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.agg == nil {
		// Without a pool the aggregator cannot fail to build.
		e.agg, _ = aggregate.New(aggregate.WithWorkers(0))
	}
	if e.sorter == nil {
		e.sorter = project.NewSorter(language.English)
	}
	return e
}

// Execute validates and runs a wire query, returning the result rows in
// final order.
//
// Errors attributable to the query are *QueryError (see IsInvalidQuery,
// IsResultTooLarge, IsDatasetNotFound). Any other error is an internal
// failure such as an unreadable database.
func (e *Engine) Execute(ctx context.Context, query []byte) ([]ir.Row, error) {
	start := time.Now()
	queryID := e.ids.Generate()
	log := e.logger.With("query_id", queryID)

	rows, matched, datasetID, err := e.execute(ctx, queryID, log, query)

	elapsed := time.Since(start)
	if err != nil {
		outcome := "internal"
		var qe *QueryError
		if errors.As(err, &qe) {
			outcome = string(qe.Code)
		}
		e.metrics.observe(outcome, elapsed, 0, 0)
		log.Info("query failed",
			"dataset", datasetID,
			"outcome", outcome,
			"error", err,
			"duration", elapsed,
		)
		return nil, err
	}

	e.metrics.observe(OutcomeOK, elapsed, matched, len(rows))
	log.Info("query executed",
		"dataset", datasetID,
		"matched", matched,
		"rows", len(rows),
		"duration", elapsed,
	)
	return rows, nil
}

func (e *Engine) execute(ctx context.Context, queryID string, log *slog.Logger, data []byte) ([]ir.Row, int, string, error) {
	lookup := &schemaLookup{store: e.store}
	q, err := queryir.Validate(ctx, data, lookup)
	if err != nil {
		return nil, 0, lookup.datasetID, e.classify(queryID, lookup.datasetID, err)
	}
	log.Debug("query validated", "dataset", q.DatasetID, "grouped", q.Transformations != nil)

	records := lookup.snapshot.Records

	matched, err := filter.Evaluate(q.Where, records)
	if err != nil {
		return nil, 0, q.DatasetID, NewInvalidQueryError(queryID, q.DatasetID, err)
	}
	log.Debug("records filtered", "input", len(records), "matched", len(matched))

	if len(matched) > e.maxResults {
		return nil, len(matched), q.DatasetID, NewResultTooLargeError(queryID, q.DatasetID, len(matched), e.maxResults)
	}

	var rows []ir.Row
	if tr := q.Transformations; tr != nil {
		groups, err := aggregate.GroupBy(matched, tr.GroupFields())
		if err != nil {
			return nil, len(matched), q.DatasetID, NewInvalidQueryError(queryID, q.DatasetID, err)
		}
		aggs, err := e.agg.Apply(ctx, groups, tr.Apply)
		if err != nil {
			if ctx.Err() != nil {
				return nil, len(matched), q.DatasetID, err
			}
			return nil, len(matched), q.DatasetID, NewInvalidQueryError(queryID, q.DatasetID, err)
		}
		log.Debug("records grouped", "groups", len(groups), "rules", len(tr.Apply))

		rows, err = project.Groups(groups, aggs, tr, q.Options.Columns)
		if err != nil {
			return nil, len(matched), q.DatasetID, fmt.Errorf("project groups: %w", err)
		}
	} else {
		rows, err = project.Records(matched, q.Options.Columns)
		if err != nil {
			return nil, len(matched), q.DatasetID, fmt.Errorf("project records: %w", err)
		}
	}

	if err := e.sorter.Sort(rows, q.Options.Order); err != nil {
		return nil, len(matched), q.DatasetID, fmt.Errorf("sort: %w", err)
	}
	return rows, len(matched), q.DatasetID, nil
}

// classify maps validation and store errors onto QueryError codes.
func (e *Engine) classify(queryID, datasetID string, err error) error {
	var ve *queryir.ValidationError
	switch {
	case errors.As(err, &ve):
		return NewInvalidQueryError(queryID, datasetID, err)
	case errors.Is(err, store.ErrDatasetNotFound):
		return NewDatasetNotFoundError(queryID, datasetID, err)
	default:
		return fmt.Errorf("query %s: %w", queryID, err)
	}
}

// schemaLookup resolves a dataset's schema from a store snapshot and keeps
// that snapshot for the rest of the pipeline. It also remembers the id it
// was asked about, for error reporting.
type schemaLookup struct {
	store     Store
	datasetID string
	snapshot  *store.Snapshot
}

func (l *schemaLookup) SchemaFor(ctx context.Context, datasetID string) (schema.Schema, error) {
	l.datasetID = datasetID
	snap, err := l.store.Snapshot(ctx, datasetID)
	if err != nil {
		return schema.Schema{}, err
	}
	l.snapshot = snap
	return schema.For(snap.Dataset.Kind)
}
