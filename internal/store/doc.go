// Package store persists events in SQLite (modernc.org/sqlite, no cgo).
//
// The store is append-only for the pipeline: Insert never updates an
// existing row. The only deletion is DeleteShard, called by the storage
// guardian after it removes a day directory. Reads serve the events CLI and
// the status endpoint.
//
// The schema is embedded and versioned; opening a database written by a
// different schema version fails with ErrSchemaMismatch. Writes retry on
// SQLITE_BUSY with a short exponential backoff.
package store
