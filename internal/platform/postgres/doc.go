// Package postgres provides PostgreSQL implementations of the store
// interfaces used by the song identification service.
//
// Both stores accept a store.DBTX, so they run identically against a
// *sql.DB connection pool or a *sql.Tx transaction. Task status updates are
// guarded so that terminal records are never rewritten.
package postgres
