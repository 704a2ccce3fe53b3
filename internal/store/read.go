package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
)

// Dataset is a catalog entry.
type Dataset struct {
	ID          string      `json:"id"`
	Kind        schema.Kind `json:"kind"`
	NumRows     int         `json:"numRows"`
	Fingerprint string      `json:"fingerprint"`
}

// Snapshot is an immutable view of one dataset. Callers must not modify
// Records or the records' field maps; snapshots are shared between queries.
type Snapshot struct {
	Dataset Dataset
	Records []ir.Record
}

// ListDatasets returns every dataset in insertion order.
// Returns an empty slice (not nil) when the catalog is empty.
func (s *Store) ListDatasets(ctx context.Context) ([]Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, num_rows, fingerprint
		FROM datasets
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list datasets: iterate: %w", err)
	}
	return datasets, nil
}

// Dataset returns the catalog entry for id, or ErrDatasetNotFound.
func (s *Store) Dataset(ctx context.Context, id string) (Dataset, error) {
	if snap, ok := s.cache.Get(id); ok {
		return snap.Dataset, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, num_rows, fingerprint FROM datasets WHERE id = ?
	`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, fmt.Errorf("dataset %q: %w", id, ErrDatasetNotFound)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset %q: %w", id, err)
	}
	return d, nil
}

// Kind returns the record kind of a dataset, or ErrDatasetNotFound.
func (s *Store) Kind(ctx context.Context, id string) (schema.Kind, error) {
	d, err := s.Dataset(ctx, id)
	if err != nil {
		return "", err
	}
	return d.Kind, nil
}

// LoadRecords returns the records of a dataset in ingestion order.
// The returned slice is shared; see Snapshot.
func (s *Store) LoadRecords(ctx context.Context, id string) ([]ir.Record, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Snapshot returns the decoded dataset, from the cache when possible.
func (s *Store) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	if snap, ok := s.cache.Get(id); ok {
		return snap, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Another reader may have loaded it while we waited.
	if snap, ok := s.cache.Get(id); ok {
		return snap, nil
	}

	snap, err := s.loadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, snap)
	return snap, nil
}

func (s *Store) loadSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load dataset %q: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	d, err := scanDataset(tx.QueryRowContext(ctx, `
		SELECT id, kind, num_rows, fingerprint FROM datasets WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %q: %w", id, ErrDatasetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset %q: %w", id, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT fields FROM records WHERE dataset_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load dataset %q: query records: %w", id, err)
	}
	defer rows.Close()

	records := make([]ir.Record, 0, d.NumRows)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("load dataset %q: scan record: %w", id, err)
		}
		fields, err := unmarshalFields(blob)
		if err != nil {
			return nil, fmt.Errorf("load dataset %q: record %d: %w", id, len(records), err)
		}
		records = append(records, ir.Record{Dataset: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load dataset %q: iterate records: %w", id, err)
	}
	if len(records) != d.NumRows {
		return nil, fmt.Errorf("load dataset %q: catalog says %d rows, found %d", id, d.NumRows, len(records))
	}

	return &Snapshot{Dataset: d, Records: records}, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (Dataset, error) {
	var d Dataset
	var kind string
	if err := row.Scan(&d.ID, &kind, &d.NumRows, &d.Fingerprint); err != nil {
		return Dataset{}, err
	}
	d.Kind = schema.Kind(kind)
	return d, nil
}
