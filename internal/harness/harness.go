package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/insight/internal/engine"
	"github.com/roach88/insight/internal/ingest"
	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
	"github.com/roach88/insight/internal/store"
)

// ErrorCodeInternal marks query errors that carry no QueryError code.
const ErrorCodeInternal = "INTERNAL"

// Harness runs scenarios against a real store and engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	ingest *ingest.Ingester
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. Query
// ids come from a sequence ("q-1", "q-2", ...) so outcomes are
// reproducible.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Add every dataset fixture
//  3. Run each query through the engine
//  4. Check each outcome against its expectation
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.DiscardHandler)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithQueryIDGenerator(engine.NewSequenceGenerator("q")),
	}
	if scenario.MaxResults > 0 {
		opts = append(opts, engine.WithMaxResults(scenario.MaxResults))
	}

	h := &Harness{
		store:  st,
		engine: engine.New(st, opts...),
		ingest: ingest.New(ingest.WithLogger(logger)),
	}

	for i, ds := range scenario.Datasets {
		if err := h.addDataset(ctx, ds); err != nil {
			return nil, fmt.Errorf("dataset[%d] %q: %w", i, ds.ID, err)
		}
	}

	result := NewResult()
	for _, q := range scenario.Queries {
		out, err := h.runQuery(ctx, q)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, out)
		if err := CheckExpect(out, q.Expect); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

func (h *Harness) addDataset(ctx context.Context, ds DatasetFixture) error {
	kind, err := schema.ParseKind(ds.Kind)
	if err != nil {
		return err
	}

	var records []ir.Record
	if ds.File != "" {
		records, _, err = h.ingest.File(ctx, ds.ID, kind, ds.File)
		if err != nil {
			return err
		}
	} else {
		records, err = inlineRecords(ds)
		if err != nil {
			return err
		}
	}

	_, err = h.store.AddDataset(ctx, ds.ID, kind, records)
	return err
}

func inlineRecords(ds DatasetFixture) ([]ir.Record, error) {
	records := make([]ir.Record, len(ds.Records))
	for i, raw := range ds.Records {
		fields := make(map[string]any, len(ds.Defaults)+len(raw))
		maps.Copy(fields, ds.Defaults)
		maps.Copy(fields, raw)

		r, err := ir.NewRecord(ds.ID, fields)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		records[i] = r
	}
	return records, nil
}

func (h *Harness) runQuery(ctx context.Context, q QueryCase) (Outcome, error) {
	data, err := q.QueryBytes()
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Name: q.Name}
	rows, err := h.engine.Execute(ctx, data)
	if err != nil {
		var qe *engine.QueryError
		if errors.As(err, &qe) {
			out.QueryID = qe.QueryID
			out.ErrorCode = string(qe.Code)
		} else {
			out.ErrorCode = ErrorCodeInternal
		}
		out.ErrorMessage = err.Error()
		return out, nil
	}
	out.Rows = rows
	return out, nil
}
