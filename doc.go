// Package forq is a persistent, concurrent job queue for shell commands.
// Producers enqueue commands with a retry budget; a pool of workers claims
// and executes them; failures retry with exponential backoff until the
// budget is exhausted, after which the job lands in a dead letter queue
// for inspection and explicit requeue.
//
// forq is a library, not a service. Pick a store backend, build an engine,
// and start it:
//
//	st, err := sqlite.Open("forq.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	eng, err := engine.New(st, engine.WithConcurrency(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	eng.Enqueue(ctx, engine.EnqueueRequest{
//	    ID:      "backup-2026-08-26",
//	    Command: `pg_dump -f /backups/app.sql app`,
//	})
//
// # Architecture
//
// Each subsystem defines its own store interface (job.Store,
// settings.Store); the composite store.Store composes them, and a single
// backend implements all of them. Backends: memory, sqlite, postgres,
// redis.
//
// Commands are executed as external processes from an argument vector,
// never through a shell. Sandboxing arbitrary commands is the operator's
// responsibility.
package forq
