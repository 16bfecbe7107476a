// Package store provides SQLite-backed history for snapshots and batch runs.
//
// Tables:
//   - snapshots: content-addressed snapshot documents, one row per distinct
//     document, keyed by the digest of its canonical encoding
//   - batch_runs: one row per submitted batch
//   - batch_items: per-record outcomes of a batch run
//
// Documents and values are stored as canonical JSON, so identical content
// always produces identical bytes and the same digest. Rows are ordered by
// insertion sequence, never by wall-clock timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
