package store

import (
	"context"
	"fmt"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
)

// AddDataset stores records under a new dataset id.
//
// The id must satisfy schema.ValidateDatasetID, must not already be in use
// (ErrDatasetExists), and every record must match the schema of kind
// (ErrInvalidRecord). At least one record is required (ErrEmptyDataset).
//
// The catalog row and all records are written in one transaction. Record
// order is preserved: LoadRecords returns records in the order given here.
func (s *Store) AddDataset(ctx context.Context, id string, kind schema.Kind, records []ir.Record) (Dataset, error) {
	if err := schema.ValidateDatasetID(id); err != nil {
		return Dataset{}, fmt.Errorf("add dataset: %w", err)
	}
	sch, err := schema.For(kind)
	if err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: %w", id, err)
	}
	if len(records) == 0 {
		return Dataset{}, fmt.Errorf("add dataset %q: %w", id, ErrEmptyDataset)
	}

	blobs := make([][]byte, len(records))
	for i, r := range records {
		if err := checkRecord(sch, r); err != nil {
			return Dataset{}, fmt.Errorf("add dataset %q: record %d: %w", id, i, err)
		}
		blobs[i], err = marshalFields(r.Fields)
		if err != nil {
			return Dataset{}, fmt.Errorf("add dataset %q: record %d: %w", id, i, err)
		}
	}

	fingerprint, err := ir.Fingerprint(records)
	if err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets WHERE id = ?`, id).Scan(&exists); err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: check existing: %w", id, err)
	}
	if exists > 0 {
		return Dataset{}, fmt.Errorf("add dataset %q: %w", id, ErrDatasetExists)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM datasets`).Scan(&seq); err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: next seq: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (id, kind, num_rows, fingerprint, seq)
		VALUES (?, ?, ?, ?, ?)
	`, id, string(kind), len(records), fingerprint, seq)
	if err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: insert catalog row: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (dataset_id, seq, fields) VALUES (?, ?, ?)`)
	if err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: prepare: %w", id, err)
	}
	defer stmt.Close()

	for i, blob := range blobs {
		if _, err := stmt.ExecContext(ctx, id, i, blob); err != nil {
			return Dataset{}, fmt.Errorf("add dataset %q: insert record %d: %w", id, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Dataset{}, fmt.Errorf("add dataset %q: commit: %w", id, err)
	}

	// A stale entry can only exist if the id was removed and re-added.
	s.cache.Remove(id)

	return Dataset{ID: id, Kind: kind, NumRows: len(records), Fingerprint: fingerprint}, nil
}

// RemoveDataset deletes a dataset and its records.
// Returns ErrDatasetNotFound if no dataset has the id.
func (s *Store) RemoveDataset(ctx context.Context, id string) error {
	if err := schema.ValidateDatasetID(id); err != nil {
		return fmt.Errorf("remove dataset: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove dataset %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove dataset %q: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove dataset %q: %w", id, ErrDatasetNotFound)
	}

	s.cache.Remove(id)
	return nil
}
