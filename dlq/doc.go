// Package dlq provides the dead letter queue for jobs that have exhausted
// their retry budget. It supports inspection, requeueing, and purging.
//
// A job moves to the dead letter state when an execution fails and its
// attempt count has reached max retries plus the initial attempt. Nothing
// is copied anywhere: the job record stays in the store with its final
// error, and this package is a filtered view over it.
//
// # Service
//
// [Service] wraps the job store with the dead letter verbs:
//
//	svc := dlq.NewService(store, hooks, logger)
//
//	entries, _ := svc.List(ctx, job.ListOpts{Limit: 50})
//	svc.Requeue(ctx, "report-nightly")
//	svc.Purge(ctx)
//
// Requeueing resets the attempt count to zero and makes the job eligible
// immediately, keeping its original command and retry budget. The last
// error is preserved until a later failure overwrites it.
package dlq
