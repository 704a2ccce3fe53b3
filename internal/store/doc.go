// Package store provides the SQLite-backed dataset catalog.
//
// The store holds:
//   - Datasets: one catalog row per dataset (id, kind, row count, fingerprint)
//   - Records: each dataset's records in ingestion order, fields as MessagePack
//
// # Read and write paths
//
// Writers (AddDataset, RemoveDataset) are serialized by a mutex and run in a
// single transaction. Readers get immutable Snapshots, decoded once and kept
// in an LRU cache keyed by dataset id. Removing or re-adding a dataset
// invalidates its cache entry.
//
// # Deterministic ordering
//
//   - ListDatasets: ORDER BY seq ASC, id COLLATE BINARY ASC
//   - LoadRecords: ORDER BY seq ASC within the dataset
//
// seq is a logical insertion counter, never a timestamp.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Records cascade when their dataset is removed
package store
