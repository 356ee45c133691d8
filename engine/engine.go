// Package engine wires all forq subsystems together: the store, the
// settings service, the hook registry, the backoff strategy, and the
// worker pool. It exposes the Enqueue/Start/Stop/Status surface that
// producers and the CLI build on.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/dlq"
	"github.com/forqio/forq/hook"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
	"github.com/forqio/forq/observability"
	"github.com/forqio/forq/settings"
	"github.com/forqio/forq/store"
	"github.com/forqio/forq/worker"
)

// Engine coordinates the queue: it accepts jobs, runs the worker pool,
// and exposes the administrative services.
type Engine struct {
	cfg      forq.Config
	store    store.Store
	hooks    *hook.Registry
	settings *settings.Service
	dlq      *dlq.Service
	pool     *worker.Pool
	logger   *slog.Logger

	// Hooks registered through options before the registry exists.
	pendingHooks []hook.Hook

	// OpenTelemetry meter provider (optional; nil means use global).
	meterProvider metric.MeterProvider
	noMetrics     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the whole configuration. Zero-valued fields are
// filled from forq.DefaultConfig().
func WithConfig(cfg forq.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConcurrency sets the number of worker slots.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.cfg.Concurrency = n }
}

// WithPollInterval sets the idle poll interval of the worker pool.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.cfg.PollInterval = d }
}

// WithShutdownTimeout bounds how long Stop waits for in-flight commands.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Engine) { e.cfg.ShutdownTimeout = d }
}

// WithStaleClaimThreshold enables the stale-claim sweep on the pool.
func WithStaleClaimThreshold(d time.Duration) Option {
	return func(e *Engine) { e.cfg.StaleClaimThreshold = d }
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) { e.pendingHooks = append(e.pendingHooks, h) }
}

// WithMeterProvider sets a custom OTel MeterProvider. When unset the
// global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithoutMetrics disables the built-in metrics hook.
func WithoutMetrics() Option {
	return func(e *Engine) { e.noMetrics = true }
}

// New creates an Engine on top of the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("engine: nil store")
	}

	e := &Engine{
		cfg:    forq.DefaultConfig(),
		store:  st,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	fillConfig(&e.cfg)

	e.hooks = hook.NewRegistry(e.logger)
	for _, h := range e.pendingHooks {
		e.hooks.Register(h)
	}

	// Built-in metrics hook, unless disabled.
	if !e.noMetrics {
		var (
			mh  *observability.MetricsHook
			err error
		)
		if e.meterProvider != nil {
			mh, err = observability.NewMetricsHookWithProvider(e.meterProvider)
		} else {
			mh, err = observability.NewMetricsHook()
		}
		if err != nil {
			return nil, fmt.Errorf("engine: metrics hook: %w", err)
		}
		e.hooks.Register(mh)
	}

	e.settings = settings.NewService(st,
		settings.WithLogger(e.logger),
		settings.WithDefaults(e.cfg.DefaultMaxRetries, e.cfg.BaseBackoff),
	)

	// Retry delays follow the settings store so `forq config set
	// base_backoff` takes effect in running workers without restart.
	dyn := backoff.NewDynamic(func() time.Duration {
		return e.settings.BaseBackoff(context.Background())
	})
	if bs, ok := st.(store.BackoffSetter); ok {
		bs.SetBackoff(dyn)
	} else {
		e.logger.Warn("store does not accept a backoff strategy, using its built-in default")
	}

	executor := worker.NewExecutor(st, e.hooks, e.logger,
		worker.WithStoreRetryDelay(e.cfg.StoreRetryDelay))

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(e.cfg.Concurrency),
		worker.WithPollInterval(e.cfg.PollInterval),
	}
	if e.cfg.StaleClaimThreshold > 0 {
		poolOpts = append(poolOpts, worker.WithStaleClaimThreshold(e.cfg.StaleClaimThreshold))
	}
	e.pool = worker.NewPool(st, executor, e.hooks, e.logger, poolOpts...)

	e.dlq = dlq.NewService(st, e.hooks, e.logger,
		dlq.WithRequeueSignal(e.pool.Wake))

	return e, nil
}

func fillConfig(cfg *forq.Config) {
	def := forq.DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.StoreRetryDelay <= 0 {
		cfg.StoreRetryDelay = def.StoreRetryDelay
	}
	if cfg.DefaultMaxRetries < 0 {
		cfg.DefaultMaxRetries = def.DefaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
}

// EnqueueRequest describes one job to accept.
type EnqueueRequest struct {
	// ID is the caller-chosen job identifier. Empty means generate one.
	ID string

	// Command is the command line to execute. It is split into an
	// argument vector at execution time; no shell is involved.
	Command string

	// MaxRetries overrides the runtime default retry budget. Nil means
	// use the default_max_retries setting.
	MaxRetries *int
}

// Enqueue validates and persists a new pending job, wakes an idle worker,
// and returns the stored snapshot.
func (e *Engine) Enqueue(ctx context.Context, req EnqueueRequest) (*job.Job, error) {
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return nil, fmt.Errorf("engine: empty command")
	}
	if _, err := worker.SplitCommand(command); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	jobID := req.ID
	if jobID == "" {
		jobID = id.NewJobID()
	}

	maxRetries := e.settings.DefaultMaxRetries(ctx)
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, fmt.Errorf("engine: negative max retries")
		}
		maxRetries = *req.MaxRetries
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:             jobID,
		Command:        command,
		State:          job.StatePending,
		MaxRetries:     maxRetries,
		NextEligibleAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.Insert(ctx, j); err != nil {
		return nil, err
	}

	e.logger.Info("job enqueued",
		slog.String("job_id", j.ID),
		slog.Int("max_retries", j.MaxRetries),
	)
	e.hooks.EmitJobEnqueued(ctx, j)
	e.pool.Wake()

	return j, nil
}

// Start begins job processing by starting the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("engine: store ping: %w", err)
	}
	return e.pool.Start(ctx)
}

// Stop gracefully shuts down the engine. In-flight commands get
// ShutdownTimeout to finish before they are cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()
	return e.pool.Stop(stopCtx)
}

// Status reports the number of jobs in each state.
func (e *Engine) Status(ctx context.Context) (map[job.State]int64, error) {
	return e.store.CountByState(ctx)
}

// Getters for subsystem access.

// Store returns the underlying store handle.
func (e *Engine) Store() store.Store { return e.store }

// DLQ returns the dead letter service.
func (e *Engine) DLQ() *dlq.Service { return e.dlq }

// Settings returns the runtime settings service.
func (e *Engine) Settings() *settings.Service { return e.settings }

// Hooks returns the hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Config returns the engine's effective configuration.
func (e *Engine) Config() forq.Config { return e.cfg }
