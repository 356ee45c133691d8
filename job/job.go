package job

import (
	"time"

	"github.com/forqio/forq/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed. It becomes
	// eligible once now >= NextEligibleAt.
	StatePending State = "pending"
	// StateRunning means exactly one worker holds the job and is
	// executing its command.
	StateRunning State = "running"
	// StateSucceeded means the command exited 0. Terminal.
	StateSucceeded State = "succeeded"
	// StateFailed marks a failed execution while the retry/dead-letter
	// decision is made. It is never a durable resting state: Plan
	// collapses Running -> Failed -> (Pending | DeadLetter) in one step,
	// so stores never persist it. It exists for reporting.
	StateFailed State = "failed"
	// StateDeadLetter means the job exhausted its retry budget. Terminal
	// until an explicit administrative requeue.
	StateDeadLetter State = "dead_letter"
)

// States lists every persistable state, in lifecycle order.
func States() []State {
	return []State{StatePending, StateRunning, StateSucceeded, StateDeadLetter}
}

// Valid reports whether s is a known state (including the transient
// StateFailed).
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateSucceeded, StateFailed, StateDeadLetter:
		return true
	}
	return false
}

// Terminal reports whether s is a resting state that no worker will
// transition further. DeadLetter is terminal for normal operation;
// only an administrative requeue moves it.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateDeadLetter
}

// Job is the unit of work: an opaque command string plus its retry budget
// and scheduling bookkeeping. The store never interprets Command.
type Job struct {
	// ID is the caller-supplied unique identifier. It never changes.
	ID string `json:"id"`

	// Command is executed by the worker as an argument vector.
	Command string `json:"command"`

	State State `json:"state"`

	// Attempts counts executions so far. Incremented exactly once per
	// execution, inside Complete. Once a job reaches Succeeded or
	// DeadLetter, Attempts <= MaxRetries+1 holds.
	Attempts int `json:"attempts"`

	// MaxRetries is the caller-supplied retry ceiling: the job may run at
	// most MaxRetries+1 times before dead-lettering.
	MaxRetries int `json:"max_retries"`

	// NextEligibleAt is the earliest instant the job may be claimed.
	// Monotonically non-decreasing across successive failures.
	NextEligibleAt time.Time `json:"next_eligible_at"`

	// ClaimedBy identifies the worker holding the job. Meaningful only
	// while State is Running; Nil otherwise.
	ClaimedBy id.WorkerID `json:"claimed_by,omitempty"`

	// LastError holds the most recent failure detail (exit status plus a
	// bounded stderr tail), retained for dead-letter inspection.
	LastError string `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
