package job_test

import (
	"errors"
	"testing"
	"time"

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/job"
)

func runningJob(attempts, maxRetries int) *job.Job {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	return &job.Job{
		ID:             "j1",
		Command:        "true",
		State:          job.StateRunning,
		Attempts:       attempts,
		MaxRetries:     maxRetries,
		NextEligibleAt: now,
		CreatedAt:      now,
	}
}

func TestPlan_Success(t *testing.T) {
	t.Parallel()

	j := runningJob(0, 3)
	tr, err := job.Plan(j, job.Outcome{Success: true, At: time.Now()}, backoff.Default())
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if tr.To != job.StateSucceeded {
		t.Errorf("To = %q, want %q", tr.To, job.StateSucceeded)
	}
	if tr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", tr.Attempts)
	}
}

func TestPlan_FailureWithBudgetLeft_SchedulesRetry(t *testing.T) {
	t.Parallel()

	j := runningJob(0, 3)
	failedAt := j.NextEligibleAt.Add(time.Minute)
	out := job.Outcome{Success: false, ExitCode: 1, Err: "exit status 1", At: failedAt}

	tr, err := job.Plan(j, out, backoff.NewExponential(time.Second))
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if tr.To != job.StatePending {
		t.Errorf("To = %q, want %q", tr.To, job.StatePending)
	}
	if tr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", tr.Attempts)
	}
	// delay(1) = 1s with base 1s.
	if want := failedAt.Add(time.Second); !tr.NextEligibleAt.Equal(want) {
		t.Errorf("NextEligibleAt = %v, want %v", tr.NextEligibleAt, want)
	}
	if tr.LastError != "exit status 1" {
		t.Errorf("LastError = %q, want %q", tr.LastError, "exit status 1")
	}
}

func TestPlan_BudgetExhausted_DeadLetters(t *testing.T) {
	t.Parallel()

	// max_retries=1 allows two executions; the second failure dead-letters.
	j := runningJob(1, 1)
	out := job.Outcome{Success: false, ExitCode: 1, Err: "exit status 1", At: time.Now()}

	tr, err := job.Plan(j, out, backoff.Default())
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if tr.To != job.StateDeadLetter {
		t.Errorf("To = %q, want %q", tr.To, job.StateDeadLetter)
	}
	if tr.Attempts != j.MaxRetries+1 {
		t.Errorf("Attempts = %d, want max_retries+1 = %d", tr.Attempts, j.MaxRetries+1)
	}
	if tr.LastError == "" {
		t.Error("LastError empty, want captured failure detail")
	}
}

func TestPlan_ZeroRetries_DeadLettersOnFirstFailure(t *testing.T) {
	t.Parallel()

	j := runningJob(0, 0)
	tr, err := job.Plan(j, job.Outcome{Success: false, ExitCode: 2, Err: "exit status 2", At: time.Now()}, backoff.Default())
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if tr.To != job.StateDeadLetter {
		t.Errorf("To = %q, want %q", tr.To, job.StateDeadLetter)
	}
	if tr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", tr.Attempts)
	}
}

func TestPlan_NonRunningJob_InvalidTransition(t *testing.T) {
	t.Parallel()

	for _, state := range []job.State{job.StatePending, job.StateSucceeded, job.StateDeadLetter} {
		j := runningJob(0, 3)
		j.State = state
		_, err := job.Plan(j, job.Outcome{Success: true, At: time.Now()}, backoff.Default())
		if !errors.Is(err, forq.ErrInvalidTransition) {
			t.Errorf("Plan on %q state: err = %v, want ErrInvalidTransition", state, err)
		}
	}
}

func TestPlan_NextEligibleAtMonotonic(t *testing.T) {
	t.Parallel()

	j := runningJob(0, 10)
	bo := backoff.NewExponential(time.Second)
	at := j.NextEligibleAt

	prev := j.NextEligibleAt
	for i := 0; i < 5; i++ {
		tr, err := job.Plan(j, job.Outcome{Success: false, ExitCode: 1, Err: "exit status 1", At: at}, bo)
		if err != nil {
			t.Fatalf("Plan error on attempt %d: %v", i+1, err)
		}
		if tr.NextEligibleAt.Before(prev) {
			t.Fatalf("NextEligibleAt went backwards: %v < %v", tr.NextEligibleAt, prev)
		}
		prev = tr.NextEligibleAt
		j.Attempts = tr.Attempts
		j.NextEligibleAt = tr.NextEligibleAt
		at = tr.NextEligibleAt // next failure happens when it next runs
	}
}

func TestPlan_ClockSkew_DoesNotRescheduleEarlier(t *testing.T) {
	t.Parallel()

	j := runningJob(0, 5)
	// Outcome timestamped before the job's current eligibility (skewed clock).
	early := j.NextEligibleAt.Add(-time.Hour)
	tr, err := job.Plan(j, job.Outcome{Success: false, ExitCode: 1, Err: "exit status 1", At: early}, backoff.NewConstant(0))
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if tr.NextEligibleAt.Before(j.NextEligibleAt) {
		t.Errorf("NextEligibleAt = %v, earlier than previous %v", tr.NextEligibleAt, j.NextEligibleAt)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to job.State
		want     bool
	}{
		{job.StatePending, job.StateRunning, true},
		{job.StateRunning, job.StateSucceeded, true},
		{job.StateRunning, job.StatePending, true},
		{job.StateRunning, job.StateDeadLetter, true},
		{job.StateDeadLetter, job.StatePending, true},
		{job.StatePending, job.StateSucceeded, false},
		{job.StateSucceeded, job.StatePending, false},
		{job.StateSucceeded, job.StateRunning, false},
		{job.StateDeadLetter, job.StateRunning, false},
		{job.StatePending, job.StateDeadLetter, false},
	}
	for _, tt := range tests {
		if got := job.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	t.Parallel()

	if !job.StateSucceeded.Terminal() || !job.StateDeadLetter.Terminal() {
		t.Error("Succeeded and DeadLetter must be terminal")
	}
	if job.StatePending.Terminal() || job.StateRunning.Terminal() || job.StateFailed.Terminal() {
		t.Error("Pending, Running, Failed must not be terminal")
	}
}
