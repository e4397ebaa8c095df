// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs a function in a goroutine with a timeout and panic recovery:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "replica health", func(ctx context.Context) error {
//		return conns.HealthCheck(ctx)
//	})
//
// WorkerPool bounds concurrency and collects task errors; Batch is the usual
// entry point for processing a slice:
//
//	errs := async.Batch(ctx, logger, ids, 4, 30*time.Second, "renewal charge",
//		func(ctx context.Context, id uuid.UUID) error {
//			return processor.charge(ctx, id)
//		})
//
// A panic inside a task is recovered and reported as that task's error.
package async
