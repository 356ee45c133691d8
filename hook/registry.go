package hook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forqio/forq/job"
)

// Named entry types pair a hook implementation with the hook name captured
// at registration time, so emit methods don't type-assert back to Hook.
type enqueuedEntry struct {
	name string
	hook JobEnqueued
}

type startedEntry struct {
	name string
	hook JobStarted
}

type succeededEntry struct {
	name string
	hook JobSucceeded
}

type retryingEntry struct {
	name string
	hook JobRetrying
}

type deadLetteredEntry struct {
	name string
	hook JobDeadLettered
}

type requeuedEntry struct {
	name string
	hook JobRequeued
}

// Registry holds registered hooks and fans lifecycle events out to them.
// Hook errors are logged, never propagated: a failing hook must not affect
// the job protocol.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	enqueued     []enqueuedEntry
	started      []startedEntry
	succeeded    []succeededEntry
	retrying     []retryingEntry
	deadLettered []deadLetteredEntry
	requeued     []requeuedEntry
}

// NewRegistry creates an empty hook registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook, binding every event interface it implements.
func (r *Registry) Register(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if hk, ok := h.(JobEnqueued); ok {
		r.enqueued = append(r.enqueued, enqueuedEntry{name, hk})
	}
	if hk, ok := h.(JobStarted); ok {
		r.started = append(r.started, startedEntry{name, hk})
	}
	if hk, ok := h.(JobSucceeded); ok {
		r.succeeded = append(r.succeeded, succeededEntry{name, hk})
	}
	if hk, ok := h.(JobRetrying); ok {
		r.retrying = append(r.retrying, retryingEntry{name, hk})
	}
	if hk, ok := h.(JobDeadLettered); ok {
		r.deadLettered = append(r.deadLettered, deadLetteredEntry{name, hk})
	}
	if hk, ok := h.(JobRequeued); ok {
		r.requeued = append(r.requeued, requeuedEntry{name, hk})
	}
}

// EmitJobEnqueued notifies JobEnqueued hooks.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	entries := r.enqueued
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.hookErr("OnJobEnqueued", e.name, j.ID, err)
		}
	}
}

// EmitJobStarted notifies JobStarted hooks.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	entries := r.started
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.hookErr("OnJobStarted", e.name, j.ID, err)
		}
	}
}

// EmitJobSucceeded notifies JobSucceeded hooks.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) {
	r.mu.RLock()
	entries := r.succeeded
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.hook.OnJobSucceeded(ctx, j, elapsed); err != nil {
			r.hookErr("OnJobSucceeded", e.name, j.ID, err)
		}
	}
}

// EmitJobRetrying notifies JobRetrying hooks.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextEligibleAt time.Time) {
	r.mu.RLock()
	entries := r.retrying
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextEligibleAt); err != nil {
			r.hookErr("OnJobRetrying", e.name, j.ID, err)
		}
	}
}

// EmitJobDeadLettered notifies JobDeadLettered hooks.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.Job, lastError string) {
	r.mu.RLock()
	entries := r.deadLettered
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.hook.OnJobDeadLettered(ctx, j, lastError); err != nil {
			r.hookErr("OnJobDeadLettered", e.name, j.ID, err)
		}
	}
}

// EmitJobRequeued notifies JobRequeued hooks.
func (r *Registry) EmitJobRequeued(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	entries := r.requeued
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.hook.OnJobRequeued(ctx, j); err != nil {
			r.hookErr("OnJobRequeued", e.name, j.ID, err)
		}
	}
}

func (r *Registry) hookErr(event, hookName, jobID string, err error) {
	r.logger.Error("hook failed",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
}
