package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/forqio/forq/engine"
	"github.com/forqio/forq/store"
	"github.com/forqio/forq/store/postgres"
	redisstore "github.com/forqio/forq/store/redis"
	"github.com/forqio/forq/store/sqlite"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "forq",
		Short:         "A persistent job queue for shell commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the YAML config file (default forq.yaml if present)")

	cmd.AddCommand(
		newEnqueueCmd(&configPath),
		newListCmd(&configPath),
		newStatusCmd(&configPath),
		newWorkerCmd(&configPath),
		newDLQCmd(&configPath),
		newConfigCmd(&configPath),
	)
	return cmd
}

func newLogger(cfg *fileConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// openStore builds the configured backend and runs its migrations.
func openStore(ctx context.Context, cfg *fileConfig, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.Store {
	case "", "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "forq.db"
		}
		st, err = sqlite.Open(path, sqlite.WithLogger(logger))
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("store is postgres but postgres.dsn is not set")
		}
		st, err = postgres.New(ctx, cfg.Postgres.DSN, postgres.WithLogger(logger))
	case "redis":
		addr := cfg.Redis.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st = redisstore.New(client, redisstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite, postgres, or redis)", cfg.Store)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// setup loads the config and wires an engine over the configured store.
// The caller owns the returned store and must Close it.
func setup(ctx context.Context, configPath string) (*engine.Engine, store.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cfg)
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(st,
		engine.WithConfig(cfg.engineConfig()),
		engine.WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return eng, st, nil
}
