package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on datasets.kind
const currentSchemaVersion = 1

// DefaultCacheSize is the number of decoded dataset snapshots kept in memory.
const DefaultCacheSize = 8

var (
	// ErrDatasetNotFound is returned when no dataset has the given id.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDatasetExists is returned when adding a dataset under an id already in use.
	ErrDatasetExists = errors.New("dataset already exists")

	// ErrEmptyDataset is returned when adding a dataset with no records.
	ErrEmptyDataset = errors.New("dataset has no records")

	// ErrInvalidRecord is returned when a record does not match its kind's schema.
	ErrInvalidRecord = errors.New("invalid record")
)

// Store is the dataset catalog: durable storage for datasets and their
// records, plus a cache of decoded snapshots for the query path.
//
// Writes (add, remove) are serialized and run in a single transaction, so
// a reader sees a dataset either completely or not at all. Snapshots handed
// to readers are never mutated.
type Store struct {
	db *sql.DB

	// mu serializes writers. Snapshot loads hold it for reading so a load
	// can never cache a dataset that a concurrent remove has just deleted.
	mu    sync.RWMutex
	cache *lru.Cache[string, *Snapshot]
}

// Option configures a Store.
type Option func(*options)

type options struct {
	cacheSize int
}

// WithCacheSize sets how many snapshots the store keeps decoded in memory.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (removing a dataset cascades to its records)
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize < 1 {
		o.cacheSize = 1
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// This also keeps per-connection pragmas (foreign_keys) in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	cache, err := lru.New[string, *Snapshot](o.cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	return &Store{db: db, cache: cache}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.cache.Purge()
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes datasets by kind for listing by kind.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_datasets_kind ON datasets(kind)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

