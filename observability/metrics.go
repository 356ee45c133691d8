// Package observability provides a metrics hook that records queue
// lifecycle counters and execution latency through OpenTelemetry.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/forqio/forq/hook"
	"github.com/forqio/forq/job"
)

const meterName = "github.com/forqio/forq"

// Compile-time interface checks.
var (
	_ hook.Hook            = (*MetricsHook)(nil)
	_ hook.JobEnqueued     = (*MetricsHook)(nil)
	_ hook.JobStarted      = (*MetricsHook)(nil)
	_ hook.JobSucceeded    = (*MetricsHook)(nil)
	_ hook.JobRetrying     = (*MetricsHook)(nil)
	_ hook.JobDeadLettered = (*MetricsHook)(nil)
	_ hook.JobRequeued     = (*MetricsHook)(nil)
)

// MetricsHook records lifecycle counters and a success-latency histogram.
// Register it on the engine to track enqueue rates, execution starts,
// completions, retries, dead letters, and requeues.
type MetricsHook struct {
	enqueued     metric.Int64Counter
	started      metric.Int64Counter
	succeeded    metric.Int64Counter
	retried      metric.Int64Counter
	deadLettered metric.Int64Counter
	requeued     metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewMetricsHook creates a MetricsHook using the global meter provider.
func NewMetricsHook() (*MetricsHook, error) {
	return NewMetricsHookWithProvider(otel.GetMeterProvider())
}

// NewMetricsHookWithProvider creates a MetricsHook against the given
// provider. Use a noop or sdk test provider in tests.
func NewMetricsHookWithProvider(provider metric.MeterProvider) (*MetricsHook, error) {
	meter := provider.Meter(meterName)

	m := &MetricsHook{}
	var err error

	if m.enqueued, err = meter.Int64Counter("forq.job.enqueued",
		metric.WithDescription("Jobs accepted into the queue")); err != nil {
		return nil, err
	}
	if m.started, err = meter.Int64Counter("forq.job.started",
		metric.WithDescription("Job executions started")); err != nil {
		return nil, err
	}
	if m.succeeded, err = meter.Int64Counter("forq.job.succeeded",
		metric.WithDescription("Jobs completed successfully")); err != nil {
		return nil, err
	}
	if m.retried, err = meter.Int64Counter("forq.job.retried",
		metric.WithDescription("Failed attempts with retry budget remaining")); err != nil {
		return nil, err
	}
	if m.deadLettered, err = meter.Int64Counter("forq.job.dead_lettered",
		metric.WithDescription("Jobs moved to the dead letter queue")); err != nil {
		return nil, err
	}
	if m.requeued, err = meter.Int64Counter("forq.job.requeued",
		metric.WithDescription("Dead-lettered jobs requeued")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("forq.job.duration",
		metric.WithDescription("Successful execution duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return m, nil
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "observability-metrics" }

// OnJobEnqueued implements hook.JobEnqueued.
func (m *MetricsHook) OnJobEnqueued(ctx context.Context, _ *job.Job) error {
	m.enqueued.Add(ctx, 1)
	return nil
}

// OnJobStarted implements hook.JobStarted.
func (m *MetricsHook) OnJobStarted(ctx context.Context, _ *job.Job) error {
	m.started.Add(ctx, 1)
	return nil
}

// OnJobSucceeded implements hook.JobSucceeded.
func (m *MetricsHook) OnJobSucceeded(ctx context.Context, _ *job.Job, elapsed time.Duration) error {
	m.succeeded.Add(ctx, 1)
	m.duration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnJobRetrying implements hook.JobRetrying.
func (m *MetricsHook) OnJobRetrying(ctx context.Context, _ *job.Job, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1)
	return nil
}

// OnJobDeadLettered implements hook.JobDeadLettered.
func (m *MetricsHook) OnJobDeadLettered(ctx context.Context, _ *job.Job, _ string) error {
	m.deadLettered.Add(ctx, 1)
	return nil
}

// OnJobRequeued implements hook.JobRequeued.
func (m *MetricsHook) OnJobRequeued(ctx context.Context, _ *job.Job) error {
	m.requeued.Add(ctx, 1)
	return nil
}
