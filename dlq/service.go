package dlq

import (
	"context"
	"log/slog"

	"github.com/forqio/forq/hook"
	"github.com/forqio/forq/job"
)

// Service provides high-level dead letter operations over the job store.
// Dead-lettered jobs stay in the store in their terminal state; the
// service is a filtered view plus the requeue and purge verbs.
type Service struct {
	store  job.Store
	hooks  *hook.Registry
	logger *slog.Logger
	notify func()
}

// Option configures a Service.
type Option func(*Service)

// WithRequeueSignal registers a callback invoked after a successful
// requeue, so workers can be woken without polling.
func WithRequeueSignal(fn func()) Option {
	return func(s *Service) { s.notify = fn }
}

// NewService creates a dead letter service.
func NewService(store job.Store, hooks *hook.Registry, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, hooks: hooks, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns dead-lettered jobs, oldest first.
func (s *Service) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return s.store.List(ctx, job.StateDeadLetter, opts)
}

// Get returns one job. The job need not be dead-lettered; callers
// inspecting an entry they listed earlier may race a requeue.
func (s *Service) Get(ctx context.Context, jobID string) (*job.Job, error) {
	return s.store.Get(ctx, jobID)
}

// Requeue moves a dead-lettered job back to pending with a fresh retry
// budget and returns the updated snapshot. The job keeps its original
// command and max retries; the last error is preserved for forensics
// until the next failure overwrites it.
func (s *Service) Requeue(ctx context.Context, jobID string) (*job.Job, error) {
	if err := s.store.Requeue(ctx, jobID); err != nil {
		return nil, err
	}

	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job requeued from dead letter", slog.String("job_id", jobID))
	if s.hooks != nil {
		s.hooks.EmitJobRequeued(ctx, j)
	}
	if s.notify != nil {
		s.notify()
	}
	return j, nil
}

// Purge deletes all dead-lettered jobs and returns how many were removed.
func (s *Service) Purge(ctx context.Context) (int, error) {
	purged := 0
	for {
		batch, err := s.store.List(ctx, job.StateDeadLetter, job.ListOpts{Limit: 100})
		if err != nil {
			return purged, err
		}
		if len(batch) == 0 {
			return purged, nil
		}
		for _, j := range batch {
			if err := s.store.Delete(ctx, j.ID); err != nil {
				return purged, err
			}
			purged++
		}
	}
}

// Count returns the number of dead-lettered jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		return 0, err
	}
	return counts[job.StateDeadLetter], nil
}
