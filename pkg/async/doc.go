// Package async runs background work with panic recovery, per-task
// timeouts and logrus error reporting.
//
// SafeGo fires a single task and forgets it:
//
//	async.SafeGo(ctx, logger, 30*time.Second, "audit archive", func(ctx context.Context) error {
//		return archiver.Archive(ctx, tenantID, events)
//	})
//
// Batch fans a slice of items out over a bounded number of workers and
// returns one error slot per item:
//
//	errs := async.Batch(ctx, logger, expired, 8, "expiry sweep", 10*time.Second,
//		func(ctx context.Context, v projection.View) error {
//			return deactivate(ctx, v)
//		})
package async
