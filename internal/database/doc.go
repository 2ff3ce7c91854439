// Package database provides PostgreSQL connection pool management.
//
// The bars and heartbeats tables live in a single database. The schema is
// managed outside this module; see store for the statements issued.
package database
