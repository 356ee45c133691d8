// Package hook defines lifecycle hooks for the queue. Hooks are notified
// of job events (enqueued, started, succeeded, retrying, dead-lettered,
// requeued) and can react to them: logging, metrics, alerting.
//
// Each event is a separate interface so a hook opts in only to the events
// it cares about.
package hook

import (
	"context"
	"time"

	"github.com/forqio/forq/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// JobEnqueued is called after a job is successfully inserted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker claims a job and begins executing it.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after a job's command exits 0.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a job fails with retry budget remaining.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextEligibleAt time.Time) error
}

// JobDeadLettered is called when a job exhausts its retry budget and moves
// to the dead letter queue.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, lastError string) error
}

// JobRequeued is called when a dead-lettered job is administratively
// moved back to Pending.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, j *job.Job) error
}
