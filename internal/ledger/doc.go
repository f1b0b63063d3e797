// Package ledger provides the SQLite-backed reconciliation ledger.
//
// The ledger holds one row per person, keyed by the upstream external ID. It
// is the durable memory that tells the engine whether a person is currently
// expected to exist downstream, so rows are never deleted: a person removed
// from the access-control system keeps its row with downstream_deleted set.
//
// # Durability
//
// Every Put and Adopt is a single committed transaction. The database runs in
// WAL mode with synchronous=FULL, so a write that returned nil survives a
// crash. The connection pool is limited to one connection: the engine is the
// only writer.
//
// # Keys
//
// Rows are keyed by external ID. A person first seen without one (legacy bulk
// payloads) is keyed by "national:<id>". When a later event re-identifies the
// same national ID under a new external ID, Adopt moves the row to the new key
// and leaves the old key behind with superseded_by pointing at it.
//
// All failures are returned as fault.LedgerIO errors.
package ledger
