// Package dispatch routes service account commands to their aggregate.
//
// The Dispatcher serializes commands per service account ID with a
// reference-counted lock table, so commands for different accounts run in
// parallel while commands for one account run one at a time. For each
// command it:
//
//  1. claims the command ID with a Deduplicator, if one is configured
//  2. loads folded state from an LRU cache, replaying the event store on a miss
//  3. snapshots the expiration policy and runs serviceaccount.Decider
//  4. appends the resulting event at the expected version
//  5. on a concurrency conflict, evicts the cached state, reloads and retries once
//  6. publishes the stored envelope to every Subscriber
//
// Subscriber failures are logged and counted but never fail the command:
// the event is already durable, and projections can be rebuilt from the log.
package dispatch
