package job

import (
	"fmt"
	"time"

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
)

// Outcome is the result of one command execution, reported by the worker
// to Complete. A failed command is not a system error; it is the expected
// input to the retry / dead-letter decision.
type Outcome struct {
	// Success is true when the command exited 0.
	Success bool `json:"success"`

	// ExitCode is the command's exit status. -1 when the command could
	// not be started or was killed by a signal.
	ExitCode int `json:"exit_code"`

	// Err is the captured failure detail. Empty on success.
	Err string `json:"err,omitempty"`

	// At is the instant the execution finished. Backoff delays are
	// anchored to it.
	At time.Time `json:"at"`
}

// Transition is the planned effect of completing a job: the fields a store
// must apply atomically. ClaimedBy is always cleared alongside.
type Transition struct {
	To             State
	Attempts       int
	NextEligibleAt time.Time
	LastError      string
}

// allowed enumerates every legal persistable state change. DeadLetter ->
// Pending is the administrative requeue; everything else follows the
// worker protocol.
var allowed = map[State][]State{
	StatePending:    {StateRunning},
	StateRunning:    {StateSucceeded, StatePending, StateDeadLetter},
	StateDeadLetter: {StatePending},
}

// CanTransition reports whether a store may move a job from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Plan computes the transition Complete must apply to a Running job given
// an execution outcome. Pure logic, no I/O: stores call it inside their
// atomic update.
//
// The attempt counter increments exactly once, here. On failure the job
// either returns to Pending with NextEligibleAt pushed out by the backoff
// strategy, or dead-letters once attempts reach MaxRetries+1.
func Plan(j *Job, out Outcome, bo backoff.Strategy) (Transition, error) {
	if j.State != StateRunning {
		return Transition{}, fmt.Errorf("complete job %q in state %q: %w", j.ID, j.State, forq.ErrInvalidTransition)
	}

	attempts := j.Attempts + 1

	if out.Success {
		return Transition{To: StateSucceeded, Attempts: attempts}, nil
	}

	if attempts >= j.MaxRetries+1 {
		return Transition{
			To:        StateDeadLetter,
			Attempts:  attempts,
			LastError: out.Err,
		}, nil
	}

	next := out.At.Add(bo.Delay(attempts))
	// Backoff never schedules a job earlier than its current eligibility.
	if next.Before(j.NextEligibleAt) {
		next = j.NextEligibleAt
	}

	return Transition{
		To:             StatePending,
		Attempts:       attempts,
		NextEligibleAt: next,
		LastError:      out.Err,
	}, nil
}
