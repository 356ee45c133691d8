// Package redis implements store.Store on Redis for high-throughput
// deployments that accept weaker durability than a SQL backend. Jobs are
// stored as Hashes, the pending set is a Sorted Set scored by eligibility
// time, and the claim is a Lua script so it stays atomic.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	st := redisstore.New(client)
//	if err := st.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/job"
	"github.com/forqio/forq/settings"
)

// Compile-time interface checks.
var (
	_ job.Store      = (*Store)(nil)
	_ settings.Store = (*Store)(nil)
)

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger

	boMu sync.RWMutex
	bo   backoff.Strategy
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackoff sets the backoff strategy applied inside Complete.
// Defaults to backoff.Default().
func WithBackoff(bo backoff.Strategy) Option {
	return func(s *Store) { s.bo = bo }
}

// New creates a Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		bo:     backoff.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// SetBackoff replaces the backoff strategy applied inside Complete.
func (s *Store) SetBackoff(bo backoff.Strategy) {
	s.boMu.Lock()
	defer s.boMu.Unlock()
	s.bo = bo
}

func (s *Store) backoff() backoff.Strategy {
	s.boMu.RLock()
	defer s.boMu.RUnlock()
	return s.bo
}

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return forq.Unavailable(fmt.Errorf("forq/redis: ping: %w", err))
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
