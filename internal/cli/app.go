package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/insight/internal/aggregate"
	"github.com/roach88/insight/internal/engine"
	"github.com/roach88/insight/internal/ingest"
	"github.com/roach88/insight/internal/store"
)

// app bundles the components a command needs, built from the resolved
// configuration. Close releases them in reverse order of creation.
type app struct {
	logger   *slog.Logger
	store    *store.Store
	agg      *aggregate.Aggregator
	engine   *engine.Engine
	ingest   *ingest.Ingester
	registry *prometheus.Registry
}

func openApp(opts *RootOptions) (*app, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath, store.WithCacheSize(cfg.CacheSize))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	agg, err := aggregate.New(
		aggregate.WithWorkers(cfg.Workers),
		aggregate.WithParallelThreshold(cfg.ParallelThreshold),
		aggregate.WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start aggregation pool", err)
	}

	registry := prometheus.NewRegistry()
	eng := engine.New(st,
		engine.WithMaxResults(cfg.MaxResults),
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(registry)),
		engine.WithAggregator(agg),
	)

	return &app{
		logger:   logger,
		store:    st,
		agg:      agg,
		engine:   eng,
		ingest:   ingest.New(ingest.WithLogger(logger)),
		registry: registry,
	}, nil
}

func (a *app) Close() error {
	a.agg.Close()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// closeApp closes the app and logs, rather than returns, any failure.
func closeApp(a *app) {
	if err := a.Close(); err != nil {
		a.logger.Error("error closing app", "error", err)
	}
}

// metricSummary flattens the counters and histogram counts of the app's
// registry into "name{labels} value" lines for verbose output.
func (a *app) metricSummary() ([]string, error) {
	families, err := a.registry.Gather()
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue())
			}
			if labels != "" {
				labels = "{" + labels + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s%s %g", mf.GetName(), labels, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%g", mf.GetName(), labels, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	return lines, nil
}

// isNotFound reports whether err is a missing-dataset error from the store.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrDatasetNotFound)
}
