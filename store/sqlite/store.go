package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/forqio/forq"
	"github.com/forqio/forq/backoff"
	"github.com/forqio/forq/job"
	"github.com/forqio/forq/settings"
)

// Ensure Store implements the subsystem interfaces at compile time.
var (
	_ job.Store      = (*Store)(nil)
	_ settings.Store = (*Store)(nil)
)

// Store is a database/sql implementation of store.Store on SQLite. WAL
// mode lets enqueuers and workers in separate processes share one file;
// the claim is a single UPDATE statement, so it is atomic without
// row-level locking.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	boMu sync.RWMutex
	bo   backoff.Strategy
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackoff sets the backoff strategy applied inside Complete.
// Defaults to backoff.Default().
func WithBackoff(bo backoff.Strategy) Option {
	return func(s *Store) { s.bo = bo }
}

// Open opens (creating if needed) the database file and returns a Store.
// WAL journal mode and a busy timeout make concurrent enqueuers and
// workers across processes block briefly instead of failing.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("forq/sqlite: open %s: %w", path, err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
		bo:     backoff.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

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

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return forq.Unavailable(fmt.Errorf("forq/sqlite: migrate: %w", err))
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return forq.Unavailable(fmt.Errorf("forq/sqlite: ping: %w", err))
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows reports whether err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey reports whether a SQLite error is a unique constraint
// violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
