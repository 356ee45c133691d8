// Package worker provides the execution side of the queue: an Executor
// that runs one claimed job's command and reports the outcome back to the
// store, and a Pool of polling worker slots driving it concurrently.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/forqio/forq"
	"github.com/forqio/forq/hook"
	"github.com/forqio/forq/job"
)

// maxErrorDetail bounds the stderr tail retained in a job's last_error.
const maxErrorDetail = 4096

// Executor runs a single claimed job: it executes the command as an
// external process from an argument vector, captures the outcome, and
// reports it through Complete, letting the store apply the retry or
// dead-letter transition. It never fabricates an outcome: when the store
// is unavailable the Complete call itself is retried, not the job.
type Executor struct {
	store           job.Store
	hooks           *hook.Registry
	logger          *slog.Logger
	storeRetryDelay time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStoreRetryDelay sets the delay between retries of a Complete call
// that failed with forq.ErrStoreUnavailable.
func WithStoreRetryDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.storeRetryDelay = d }
}

// NewExecutor creates an Executor.
func NewExecutor(store job.Store, hooks *hook.Registry, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		store:           store,
		hooks:           hooks,
		logger:          logger,
		storeRetryDelay: forq.DefaultConfig().StoreRetryDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the claimed job to completion and applies its transition.
// The command runs with no enforced timeout; ctx cancellation kills it
// only on forced shutdown. The returned error reports protocol failures
// (store errors, invalid transitions), never command failures; those are
// outcomes.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	start := time.Now()
	out := e.runCommand(ctx, j)
	elapsed := time.Since(start)

	updated, err := e.complete(ctx, j.ID, out)
	if err != nil {
		return err
	}

	switch updated.State {
	case job.StateSucceeded:
		e.logger.Info("job succeeded",
			slog.String("job_id", updated.ID),
			slog.Int("attempts", updated.Attempts),
			slog.Duration("elapsed", elapsed),
		)
		e.hooks.EmitJobSucceeded(ctx, updated, elapsed)
	case job.StatePending:
		e.logger.Warn("job failed, retry scheduled",
			slog.String("job_id", updated.ID),
			slog.Int("attempt", updated.Attempts),
			slog.Int("max_retries", updated.MaxRetries),
			slog.Time("next_eligible_at", updated.NextEligibleAt),
			slog.String("error", out.Err),
		)
		e.hooks.EmitJobRetrying(ctx, updated, updated.Attempts, updated.NextEligibleAt)
	case job.StateDeadLetter:
		e.logger.Error("job dead-lettered",
			slog.String("job_id", updated.ID),
			slog.Int("attempts", updated.Attempts),
			slog.String("error", out.Err),
		)
		e.hooks.EmitJobDeadLettered(ctx, updated, updated.LastError)
	}

	return nil
}

// runCommand executes the job's command and captures the outcome. A
// failing command is a normal outcome, not an error.
func (e *Executor) runCommand(ctx context.Context, j *job.Job) job.Outcome {
	argv, err := SplitCommand(j.Command)
	if err != nil {
		// An unparseable command can never succeed; fail the attempt.
		return job.Outcome{ExitCode: -1, Err: err.Error(), At: time.Now().UTC()}
	}

	stderr := newTailBuffer(maxErrorDetail)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = stderr

	runErr := cmd.Run()
	finished := time.Now().UTC()

	if runErr == nil {
		return job.Outcome{Success: true, ExitCode: 0, At: finished}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		detail := fmt.Sprintf("exit status %d", exitErr.ExitCode())
		if tail := stderr.String(); tail != "" {
			detail += ": " + tail
		}
		return job.Outcome{ExitCode: exitErr.ExitCode(), Err: detail, At: finished}
	}

	// The process never started (binary missing, permission denied, ...).
	return job.Outcome{ExitCode: -1, Err: runErr.Error(), At: finished}
}

// complete reports the outcome, retrying through transient store failures.
// The retry loop stops on ctx cancellation so shutdown isn't held hostage
// by an unreachable store.
func (e *Executor) complete(ctx context.Context, jobID string, out job.Outcome) (*job.Job, error) {
	for {
		updated, err := e.store.Complete(ctx, jobID, out)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, forq.ErrStoreUnavailable) {
			// NotFound or InvalidTransition: a caller/logic bug, not
			// something a retry can fix.
			return nil, err
		}

		e.logger.Warn("store unavailable, retrying complete",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("worker: complete job %q: %w", jobID, ctx.Err())
		case <-time.After(e.storeRetryDelay):
		}
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	s := string(t.buf)
	// Trim the trailing newline most tools emit.
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
