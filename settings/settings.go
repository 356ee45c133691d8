// Package settings provides store-backed runtime configuration. Values are
// persisted next to the jobs they govern, so `forq config set` from one
// process is observed by already-running workers: the engine resolves the
// retry default per enqueue and the backoff base per failure, reading
// through the store each time.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/forqio/forq"
)

// Setting keys.
const (
	// KeyDefaultMaxRetries is the retry budget applied to jobs enqueued
	// without one.
	KeyDefaultMaxRetries = "default_max_retries"

	// KeyBaseBackoff is the base of the exponential retry delay, stored
	// as a Go duration string (e.g. "2s").
	KeyBaseBackoff = "base_backoff"
)

// Store defines the persistence contract for settings.
type Store interface {
	// GetSetting returns the value for key, or forq.ErrSettingNotFound
	// when it was never set.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting persists a value for key, overwriting any previous one.
	SetSetting(ctx context.Context, key, value string) error
}

// Service reads and writes typed settings over a Store, falling back to
// configured defaults when a key is unset or the store is unreachable.
// A fallback is logged; it never fails the surrounding operation.
type Service struct {
	store             Store
	logger            *slog.Logger
	defaultMaxRetries int
	defaultBackoff    time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDefaults sets the values returned when a key is unset.
func WithDefaults(maxRetries int, baseBackoff time.Duration) Option {
	return func(s *Service) {
		s.defaultMaxRetries = maxRetries
		s.defaultBackoff = baseBackoff
	}
}

// NewService creates a settings service over the given store.
func NewService(store Store, opts ...Option) *Service {
	cfg := forq.DefaultConfig()
	s := &Service{
		store:             store,
		logger:            slog.Default(),
		defaultMaxRetries: cfg.DefaultMaxRetries,
		defaultBackoff:    cfg.BaseBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMaxRetries returns the current retry budget default.
func (s *Service) DefaultMaxRetries(ctx context.Context) int {
	raw, err := s.store.GetSetting(ctx, KeyDefaultMaxRetries)
	if err != nil {
		s.fallback(KeyDefaultMaxRetries, err)
		return s.defaultMaxRetries
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.logger.Warn("invalid setting value, using default",
			slog.String("key", KeyDefaultMaxRetries),
			slog.String("value", raw),
		)
		return s.defaultMaxRetries
	}
	return n
}

// SetDefaultMaxRetries persists a new retry budget default.
func (s *Service) SetDefaultMaxRetries(ctx context.Context, n int) error {
	if n < 0 {
		return errors.New("settings: default_max_retries must be >= 0")
	}
	return s.store.SetSetting(ctx, KeyDefaultMaxRetries, strconv.Itoa(n))
}

// BaseBackoff returns the current backoff base.
func (s *Service) BaseBackoff(ctx context.Context) time.Duration {
	raw, err := s.store.GetSetting(ctx, KeyBaseBackoff)
	if err != nil {
		s.fallback(KeyBaseBackoff, err)
		return s.defaultBackoff
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		s.logger.Warn("invalid setting value, using default",
			slog.String("key", KeyBaseBackoff),
			slog.String("value", raw),
		)
		return s.defaultBackoff
	}
	return d
}

// SetBaseBackoff persists a new backoff base.
func (s *Service) SetBaseBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return errors.New("settings: base_backoff must be positive")
	}
	return s.store.SetSetting(ctx, KeyBaseBackoff, d.String())
}

func (s *Service) fallback(key string, err error) {
	if errors.Is(err, forq.ErrSettingNotFound) {
		return
	}
	s.logger.Warn("settings read failed, using default",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
