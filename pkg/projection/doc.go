// Package projection maintains the queryable read model of service
// accounts.
//
// The Projector subscribes to the dispatcher and folds every appended
// envelope into a View. Views carry the version they reflect, so applying
// the same envelope twice, or an older one, changes nothing. When an
// envelope arrives ahead of the stored view (a missed delivery), the
// aggregate is replayed from the event store instead.
//
// Views never hold the secret hash or salt; credential checks read those
// from the event-sourced state.
package projection
