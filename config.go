package forq

import "time"

// Config holds configuration for the queue engine.
type Config struct {
	// Concurrency is the number of worker slots processing jobs in parallel.
	Concurrency int

	// PollInterval is how long an idle worker waits before re-checking for
	// an eligible job. Inserts wake idle workers early, so this mostly
	// bounds how late a backoff-scheduled retry can start.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight commands
	// during graceful shutdown before cancelling them.
	ShutdownTimeout time.Duration

	// StoreRetryDelay is how long a worker waits before retrying a store
	// operation that failed with ErrStoreUnavailable.
	StoreRetryDelay time.Duration

	// DefaultMaxRetries is the retry budget applied to jobs enqueued
	// without one. Overridable at runtime through the settings store.
	DefaultMaxRetries int

	// BaseBackoff is the base of the exponential retry delay:
	// delay(attempt) = BaseBackoff * 2^(attempt-1). Overridable at runtime
	// through the settings store.
	BaseBackoff time.Duration

	// StaleClaimThreshold, when non-zero, enables the stale-claim sweep:
	// Running jobs whose claim is older than the threshold are requeued.
	// Zero (the default) leaves crashed claims orphaned, per the core
	// contract.
	StaleClaimThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      500 * time.Millisecond,
		ShutdownTimeout:   30 * time.Second,
		StoreRetryDelay:   time.Second,
		DefaultMaxRetries: 3,
		BaseBackoff:       2 * time.Second,
	}
}
