// Package aggregate implements GROUP and APPLY.
//
// GroupBy partitions the filtered records by their GROUP field values;
// an Aggregator then evaluates every APPLY rule for every group. Small
// inputs are aggregated inline. Above a configurable group count the work
// fans out over a bounded ants worker pool; results are written back by
// group index so output order never depends on scheduling.
package aggregate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/queryir"
)

// DefaultParallelThreshold is the group count from which Apply uses the pool.
const DefaultParallelThreshold = 256

// Aggregator evaluates APPLY rules over groups.
// It is safe for concurrent use. Close releases the worker pool.
type Aggregator struct {
	pool      *ants.Pool
	threshold int
	logger    *slog.Logger
}

// Option configures an Aggregator.
type Option func(*config)

type config struct {
	workers   int
	threshold int
	logger    *slog.Logger
}

// WithWorkers sets the worker pool size. Zero or negative disables the pool.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithParallelThreshold sets the group count from which Apply fans out.
func WithParallelThreshold(n int) Option {
	return func(c *config) { c.threshold = n }
}

// WithLogger sets the logger used for pool diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates an Aggregator. By default the pool has GOMAXPROCS workers.
func New(opts ...Option) (*Aggregator, error) {
	cfg := config{
		workers:   runtime.GOMAXPROCS(0),
		threshold: DefaultParallelThreshold,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Aggregator{threshold: cfg.threshold, logger: cfg.logger}
	if cfg.workers > 0 {
		pool, err := ants.NewPool(cfg.workers, ants.WithPanicHandler(func(v any) {
			cfg.logger.Error("aggregate worker panic", "panic", v)
		}))
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		a.pool = pool
	}
	return a, nil
}

// Close releases the worker pool.
func (a *Aggregator) Close() {
	if a.pool != nil {
		a.pool.Release()
	}
}

// Apply evaluates rules for each group. The result has one slice per group,
// in group order, holding one value per rule, in rule order.
//
// A failing rule fails the whole call; no partial result is returned.
func (a *Aggregator) Apply(ctx context.Context, groups []Group, rules []queryir.ApplyRule) ([][]ir.Value, error) {
	out := make([][]ir.Value, len(groups))

	if a.pool == nil || len(groups) < a.threshold || len(rules) == 0 {
		for i := range groups {
			vals, err := applyGroup(groups[i], rules)
			if err != nil {
				return nil, err
			}
			out[i] = vals
		}
		return out, nil
	}

	chunk := max(1, len(groups)/(a.pool.Cap()*4))
	nchunks := (len(groups) + chunk - 1) / chunk
	errs := make([]error, nchunks)

	a.logger.Debug("parallel apply", "groups", len(groups), "chunks", nchunks, "workers", a.pool.Cap())

	var wg sync.WaitGroup
	for c := 0; c < nchunks; c++ {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		lo, hi := c*chunk, min((c+1)*chunk, len(groups))
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[c] = fmt.Errorf("aggregate groups %d-%d: panic: %v", lo, hi, r)
				}
			}()
			for i := lo; i < hi; i++ {
				vals, err := applyGroup(groups[i], rules)
				if err != nil {
					errs[c] = err
					return
				}
				out[i] = vals
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit aggregate task: %w", err)
		}
	}
	wg.Wait()

	// First error by chunk index, so the reported failure is deterministic.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyGroup(g Group, rules []queryir.ApplyRule) ([]ir.Value, error) {
	vals := make([]ir.Value, len(rules))
	for j, rule := range rules {
		v, err := Compute(rule.Op, rule.Key.Field, g.Records)
		if err != nil {
			return nil, fmt.Errorf("APPLY %s: %w", rule.Alias, err)
		}
		vals[j] = v
	}
	return vals, nil
}
