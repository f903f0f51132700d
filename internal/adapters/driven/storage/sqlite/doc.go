// Package sqlite persists records, jobs and scheduler state in a single
// SQLite database.
//
// The adapter uses modernc.org/sqlite, a pure Go SQLite implementation, so
// the binary cross-compiles without CGO. One Store exposes three ports:
//
//   - RecordStore: content records and their indexing state
//   - JobStore: queued indexing jobs and their cursors
//   - SchedulerStore: recurring worker tasks and their history
//
// # Schema
//
// The schema is managed through numbered migrations embedded from the
// migrations/ directory. Applied versions are tracked in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.algosync/data/algosync.db.
//
// # Thread Safety
//
// All operations are safe for concurrent use. The database runs in WAL mode
// with a busy timeout so that a worker and a CLI task can share it.
package sqlite
