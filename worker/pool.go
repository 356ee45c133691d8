package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/forqio/forq/hook"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
)

// Pool manages a set of concurrent worker goroutines that claim pending
// jobs and run them through the Executor. Each slot carries its own
// worker identity so claims are attributable. Slots wake on an explicit
// signal after an enqueue or requeue and fall back to polling for jobs
// whose eligibility arrives by clock (retry backoff).
type Pool struct {
	store        job.Store
	executor     *Executor
	hooks        *hook.Registry
	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger
	limiter      *rate.Limiter

	// Stale claim reaping. Zero disables it.
	staleClaimThreshold time.Duration

	stopCh     chan struct{}
	wakeCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits before polling the
// store again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithClaimLimit caps the pool-wide claim rate. Zero disables the cap.
func WithClaimLimit(perSecond float64, burst int) PoolOption {
	return func(p *Pool) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithStaleClaimThreshold enables the reaper: running jobs whose claim is
// older than d are returned to pending. Zero disables reaping.
func WithStaleClaimThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleClaimThreshold = d }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		store:        store,
		executor:     executor,
		hooks:        hooks,
		concurrency:  4,
		pollInterval: 500 * time.Millisecond,
		logger:       logger,
		stopCh:       make(chan struct{}),
		wakeCh:       make(chan struct{}, 1),
		activeJobs:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wake nudges an idle worker to poll immediately. Non-blocking; a signal
// already pending is enough, workers drain the queue until empty.
func (p *Pool) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Duration("poll_interval", p.pollInterval),
	)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.claimLoop(id.NewWorkerID())
	}

	if p.staleClaimThreshold > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for in-flight jobs to
// finish. If the context expires first, active jobs are cancelled and the
// pool waits for the cancelled executions to report their outcomes.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// claimLoop is run by each worker slot under its own identity.
func (p *Pool) claimLoop(workerID id.WorkerID) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.limiter != nil {
			if err := p.waitClaimLimit(); err != nil {
				return
			}
		}

		claimed, err := p.store.ClaimNext(context.Background(), workerID, time.Now().UTC())
		if err != nil {
			p.logger.Error("claim error",
				slog.String("worker_id", workerID.String()),
				slog.String("error", err.Error()),
			)
			p.idle()
			continue
		}

		if claimed == nil {
			p.idle()
			continue
		}

		p.logger.Info("job claimed",
			slog.String("job_id", claimed.ID),
			slog.String("worker_id", workerID.String()),
			slog.Int("attempt", claimed.Attempts+1),
		)
		p.hooks.EmitJobStarted(context.Background(), claimed)

		ctx, cancel := context.WithCancel(context.Background())
		p.trackJob(claimed.ID, cancel)

		if execErr := p.executor.Execute(ctx, claimed); execErr != nil {
			p.logger.Error("job execution failed",
				slog.String("job_id", claimed.ID),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackJob(claimed.ID)
		cancel()
	}
}

// waitClaimLimit blocks until the limiter admits a claim or the pool stops.
func (p *Pool) waitClaimLimit() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return p.limiter.Wait(ctx)
}

// idle waits for a wake signal, the poll interval, or shutdown.
func (p *Pool) idle() {
	select {
	case <-p.wakeCh:
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

// reaperLoop periodically returns jobs with expired claims to pending.
func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.staleClaimThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapStaleClaims()
		}
	}
}

func (p *Pool) reapStaleClaims() {
	stale, err := p.store.ReapStale(context.Background(), p.staleClaimThreshold)
	if err != nil {
		p.logger.Error("reap stale claims error", slog.String("error", err.Error()))
		return
	}

	for _, j := range stale {
		p.logger.Warn("reclaimed stale job", slog.String("job_id", j.ID))
	}
	if len(stale) > 0 {
		p.Wake()
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
