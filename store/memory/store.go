// Package memory provides a fully in-memory store.Store. It is safe for
// concurrent use and intended for unit testing and development: tests
// substitute it for a durable backend through the injected store handle.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
	"github.com/forqio/forq/settings"
)

// Ensure Store implements the subsystem interfaces at compile time.
var (
	_ job.Store      = (*Store)(nil)
	_ settings.Store = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store. The mutex makes
// every operation atomic; a claim and its state transition commit
// together or not at all.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	settings map[string]string
	bo       backoff.Strategy
	closed   bool
}

// Option configures the Store.
type Option func(*Store)

// WithBackoff sets the backoff strategy applied inside Complete.
// Defaults to backoff.Default().
func WithBackoff(bo backoff.Strategy) Option {
	return func(s *Store) { s.bo = bo }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:     make(map[string]*job.Job),
		settings: make(map[string]string),
		bo:       backoff.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBackoff replaces the backoff strategy applied inside Complete. The
// engine installs its settings-aware strategy through this after wiring.
func (s *Store) SetBackoff(bo backoff.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bo = bo
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return forq.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// Insert persists a new job.
func (s *Store) Insert(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return forq.ErrStoreClosed
	}
	if _, exists := s.jobs[j.ID]; exists {
		return forq.ErrDuplicateJob
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

// ClaimNext atomically claims the eligible job with the earliest
// NextEligibleAt (ties: earliest CreatedAt, then smallest ID).
func (s *Store) ClaimNext(_ context.Context, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, forq.ErrStoreClosed
	}

	var best *job.Job
	for _, j := range s.jobs {
		if j.State != job.StatePending || j.NextEligibleAt.After(now) {
			continue
		}
		if best == nil || claimBefore(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	started := now
	best.State = job.StateRunning
	best.ClaimedBy = workerID
	best.StartedAt = &started
	best.UpdatedAt = now

	cp := *best
	return &cp, nil
}

// claimBefore reports whether a should be claimed before b.
func claimBefore(a, b *job.Job) bool {
	if !a.NextEligibleAt.Equal(b.NextEligibleAt) {
		return a.NextEligibleAt.Before(b.NextEligibleAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Complete applies the planned transition for out and returns the updated
// snapshot.
func (s *Store) Complete(_ context.Context, jobID string, out job.Outcome) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, forq.ErrStoreClosed
	}
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, forq.ErrJobNotFound
	}

	tr, err := job.Plan(j, out, s.bo)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j.State = tr.To
	j.Attempts = tr.Attempts
	j.ClaimedBy = id.Nil
	j.UpdatedAt = now
	if tr.To == job.StatePending {
		j.NextEligibleAt = tr.NextEligibleAt
	}
	if tr.LastError != "" {
		j.LastError = tr.LastError
	}
	if tr.To.Terminal() {
		done := now
		j.CompletedAt = &done
	}

	cp := *j
	return &cp, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(_ context.Context, jobID string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, forq.ErrStoreClosed
	}
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, forq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// List returns jobs in the given state, oldest first. An empty state
// matches all jobs.
func (s *Store) List(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, forq.ErrStoreClosed
	}

	result := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if state != "" && j.State != state {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].ID < result[k].ID
	})

	return paginate(result, opts), nil
}

func paginate(jobs []*job.Job, opts job.ListOpts) []*job.Job {
	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs
}

// Requeue moves a dead-lettered job back to Pending with a fresh budget.
func (s *Store) Requeue(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return forq.ErrStoreClosed
	}
	j, ok := s.jobs[jobID]
	if !ok {
		return forq.ErrJobNotFound
	}
	if j.State != job.StateDeadLetter {
		return forq.ErrInvalidTransition
	}

	now := time.Now().UTC()
	j.State = job.StatePending
	j.Attempts = 0
	j.NextEligibleAt = now
	j.ClaimedBy = id.Nil
	j.CompletedAt = nil
	j.UpdatedAt = now
	return nil
}

// Delete removes a job record.
func (s *Store) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return forq.ErrStoreClosed
	}
	if _, ok := s.jobs[jobID]; !ok {
		return forq.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

// CountByState returns the number of jobs in each persistable state.
func (s *Store) CountByState(_ context.Context) (map[job.State]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, forq.ErrStoreClosed
	}

	counts := make(map[job.State]int64, 4)
	for _, st := range job.States() {
		counts[st] = 0
	}
	for _, j := range s.jobs {
		counts[j.State]++
	}
	return counts, nil
}

// ReapStale requeues Running jobs whose claim is older than olderThan.
func (s *Store) ReapStale(_ context.Context, olderThan time.Duration) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, forq.ErrStoreClosed
	}

	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	var reaped []*job.Job
	for _, j := range s.jobs {
		if j.State != job.StateRunning || j.StartedAt == nil || j.StartedAt.After(cutoff) {
			continue
		}
		j.State = job.StatePending
		j.ClaimedBy = id.Nil
		j.NextEligibleAt = now
		j.StartedAt = nil
		j.UpdatedAt = now
		cp := *j
		reaped = append(reaped, &cp)
	}
	return reaped, nil
}

// ──────────────────────────────────────────────────
// Settings Store
// ──────────────────────────────────────────────────

// GetSetting returns the value for key.
func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", forq.ErrStoreClosed
	}
	v, ok := s.settings[key]
	if !ok {
		return "", forq.ErrSettingNotFound
	}
	return v, nil
}

// SetSetting persists a value for key.
func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return forq.ErrStoreClosed
	}
	s.settings[key] = value
	return nil
}
