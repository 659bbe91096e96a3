// Package eventstore persists the append-only event history of service accounts.
//
// Every aggregate owns a gap-free sequence of versions starting at 1. Append
// takes the version the caller last observed and fails with
// ErrConcurrencyConflict when another writer got there first, so at most one
// event is ever recorded for a given (aggregate, version).
//
// Two implementations are provided:
//
//   - MemoryStore for tests and single-process deployments
//   - PostgresStore backed by the sa_events table
//
// Events are also numbered by a store-wide sequence. LoadAll pages through
// that sequence, which is what projection rebuilds and the audit archiver use.
//
// # Usage
//
//	store := eventstore.NewPostgresStore(db)
//	history, err := store.Load(ctx, "sa-123")
//	...
//	stored, err := store.Append(ctx, "sa-123", int64(len(history)), envelopes)
//	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
//	    // reload and decide again
//	}
package eventstore
