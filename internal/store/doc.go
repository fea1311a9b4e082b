// Package store keeps the history of suite runs in SQLite.
//
// A run is opened before the first test starts, test results (with their
// snapshot comparisons) are appended as tests finish, and the run is
// finished once teardown is done. A run that was never finished was
// interrupted.
//
// # Tables
//
//   - runs: one row per suite run, keyed by a UUIDv7
//   - test_results: one row per test, ordered by seq within a run
//   - snapshot_results: one row per baseline comparison, ordered by seq within a test
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as RFC 3339 text in UTC.
package store
