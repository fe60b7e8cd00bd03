// Package store persists moderation data in SQLite: the labeled sample sets
// that training reads, and the append-only decision log.
//
// Database access goes through an explicit bounded connection pool. Callers
// acquire a connection with a deadline and always release it; when every
// connection is busy, Acquire fails fast with ErrPoolExhausted instead of
// queueing unbounded work behind the database.
package store
