// Package store defines the aggregate persistence interface. Each
// subsystem (job, settings) defines its own store interface; the composite
// Store composes them, and a single backend implements all of them.
// Backends: memory, sqlite, postgres, redis.
package store

import (
	"context"

	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/job"
	"github.com/forqio/forq/settings"
)

// Store is the aggregate persistence interface. One durable job table
// keyed by id plus the settings key/value pairs are the only persisted
// structures.
type Store interface {
	job.Store
	settings.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// BackoffSetter is implemented by backends that apply the retry transition
// inside Complete and therefore need the strategy injected after
// construction. The engine installs its settings-aware strategy through
// it when the backend supports it.
type BackoffSetter interface {
	SetBackoff(bo backoff.Strategy)
}
