// Package ingest turns raw dataset files into records for the store.
//
// Two producers exist, one per record kind:
//
//   - Sections: a ZIP archive whose courses/ directory holds one JSON file
//     per course, each carrying {"result": [...]} with one object per
//     section.
//   - Rooms: a JSON array of room objects, as emitted by the external
//     scraping and geocoding step.
//
// Producers are lenient per record and strict per dataset: malformed
// sections and out-of-range rooms are skipped and counted, but a dataset
// with no valid record at all is rejected with *Error.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
)

// Report summarizes one ingestion run.
type Report struct {
	// Files is the number of candidate files examined (sections only).
	Files int

	// Accepted is the number of records produced.
	Accepted int

	// Skipped is the number of records or files dropped as invalid.
	Skipped int
}

// Ingester parses dataset files into records.
type Ingester struct {
	logger *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger used to report skipped input. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingester) {
		in.logger = l
	}
}

// New creates an Ingester.
func New(opts ...Option) *Ingester {
	in := &Ingester{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// File reads the dataset at path and parses it as the given kind.
// Records are tagged with datasetID.
func (in *Ingester) File(ctx context.Context, datasetID string, kind schema.Kind, path string) ([]ir.Record, Report, error) {
	if err := schema.ValidateDatasetID(datasetID); err != nil {
		return nil, Report{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, Report{}, &Error{Kind: kind, Source: path, Reason: "open", Err: err}
	}
	defer f.Close()

	switch kind {
	case schema.KindSections:
		info, err := f.Stat()
		if err != nil {
			return nil, Report{}, &Error{Kind: kind, Source: path, Reason: "stat", Err: err}
		}
		return in.Sections(ctx, datasetID, f, info.Size())
	case schema.KindRooms:
		return in.Rooms(ctx, datasetID, f)
	default:
		return nil, Report{}, fmt.Errorf("ingest %s: unsupported kind %q", path, kind)
	}
}

// Rooms and Sections share the final acceptance rule.
func finish(kind schema.Kind, source string, records []ir.Record, rep Report) ([]ir.Record, Report, error) {
	rep.Accepted = len(records)
	if len(records) == 0 {
		return nil, rep, &Error{Kind: kind, Source: source, Reason: "no valid records", Err: ErrNoValidRecords}
	}
	return records, rep, nil
}
