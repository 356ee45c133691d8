package job

import (
	"context"
	"time"

	"github.com/forqio/forq/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for jobs. Implementations must
// make ClaimNext linearizable with respect to Complete and other ClaimNext
// calls on the same job: two concurrent callers never both receive it.
// Unrelated jobs remain claimable concurrently.
//
// Backend I/O failures are reported as errors matching
// forq.ErrStoreUnavailable; such an operation did not durably apply and
// may be retried whole.
type Store interface {
	// Insert persists a new job in Pending state with zero attempts and
	// NextEligibleAt already set by the caller (enqueue time for a fresh
	// job). Fails with forq.ErrDuplicateJob if the id exists.
	Insert(ctx context.Context, j *Job) error

	// ClaimNext atomically selects at most one job with state Pending and
	// NextEligibleAt <= now, transitions it to Running bound to workerID,
	// and returns the updated snapshot. Returns (nil, nil) when nothing is
	// eligible. Selection order: NextEligibleAt ASC, CreatedAt ASC, ID ASC.
	ClaimNext(ctx context.Context, workerID id.WorkerID, now time.Time) (*Job, error)

	// Complete applies the Plan transition for the given outcome and
	// returns the updated snapshot. Fails with forq.ErrJobNotFound for an
	// unknown id and forq.ErrInvalidTransition if the job is not Running
	// (repeating Complete on a terminal job fails without further
	// mutation).
	Complete(ctx context.Context, jobID string, out Outcome) (*Job, error)

	// Get returns a snapshot of one job. Read-only.
	Get(ctx context.Context, jobID string) (*Job, error)

	// List returns jobs in the given state, oldest first. An empty state
	// matches all jobs. Read-only.
	List(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// Requeue moves a dead-lettered job back to Pending with a fresh
	// retry budget (attempts reset to zero, eligible immediately). Fails
	// with forq.ErrInvalidTransition unless the job is in DeadLetter.
	Requeue(ctx context.Context, jobID string) error

	// Delete removes a job record. Administrative only; normal operation
	// never deletes.
	Delete(ctx context.Context, jobID string) error

	// CountByState returns the number of jobs in each persistable state.
	CountByState(ctx context.Context) (map[State]int64, error)

	// ReapStale requeues Running jobs whose claim is older than olderThan
	// and returns them. This is the lease-style recovery extension for
	// claims orphaned by a crashed worker; attempts are not incremented.
	ReapStale(ctx context.Context, olderThan time.Duration) ([]*Job, error)
}
