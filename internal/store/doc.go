// Package store persists bars and service heartbeats.
//
// Every write is an idempotent upsert keyed on (source, symbol, timeframe, ts):
// a repeated key overwrites the value columns and never creates a second row.
// All rows of one Upsert call share a transaction, so a failed call leaves no
// partial batch behind. The database unique key is the only synchronization
// between concurrent writers; the last successful write wins.
//
// Backends:
//   - Postgres: production store on a pgx pool, schema managed externally
//   - SQLite: local store, creates its own schema on open
package store
