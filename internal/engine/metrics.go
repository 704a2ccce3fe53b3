package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for insight_queries_total.
const (
	OutcomeOK = "ok"
)

// Metrics records per-query counters and histograms.
//
// Metrics are registered on the Registerer passed to NewMetrics rather than
// the global default, so tests and embedding programs control exposure.
type Metrics struct {
	// Queries counts executed queries by outcome ("ok" or an error code).
	Queries *prometheus.CounterVec

	// Duration is the end-to-end latency of Execute.
	Duration prometheus.Histogram

	// Matched is the size of the filtered set of successful queries.
	Matched prometheus.Histogram

	// Rows is the number of result rows of successful queries.
	Rows prometheus.Histogram
}

// NewMetrics creates and registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	rowBuckets := prometheus.ExponentialBuckets(1, 4, 8) // 1 .. 16384

	return &Metrics{
		Queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_queries_total",
				Help: "Total number of executed queries by outcome",
			},
			[]string{"outcome"},
		),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "insight_query_duration_seconds",
			Help:    "Query execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Matched: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "insight_query_matched_records",
			Help:    "Number of records matching WHERE",
			Buckets: rowBuckets,
		}),
		Rows: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "insight_query_result_rows",
			Help:    "Number of rows returned per query",
			Buckets: rowBuckets,
		}),
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration, matched, rows int) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.Matched.Observe(float64(matched))
		m.Rows.Observe(float64(rows))
	}
}
