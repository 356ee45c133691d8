package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/forqio/forq/engine"
	"github.com/forqio/forq/job"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage worker processes",
	}
	workerCmd.AddCommand(newWorkerStartCmd(configPath))
	return workerCmd
}

func newWorkerStartCmd(configPath *string) *cobra.Command {
	var (
		count          int
		statusInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start workers and process jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := []engine.Option{
				engine.WithConfig(cfg.engineConfig()),
				engine.WithLogger(logger),
			}
			if cmd.Flags().Changed("count") {
				opts = append(opts, engine.WithConcurrency(count))
			}
			eng, err := engine.New(st, opts...)
			if err != nil {
				return err
			}

			if err := eng.Start(ctx); err != nil {
				return err
			}
			logger.Info("workers started",
				"concurrency", eng.Config().Concurrency,
				"store", storeName(cfg),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			if statusInterval > 0 {
				g.Go(func() error {
					return logStatus(gctx, eng, logger, statusInterval)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			logger.Info("shutting down")
			// ctx is already cancelled; Stop applies its own timeout.
			return eng.Stop(context.Background())
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "number of worker slots (default from config)")
	cmd.Flags().DurationVar(&statusInterval, "status-interval", time.Minute,
		"how often to log queue depth (0 disables)")
	return cmd
}

// logStatus periodically logs per-state job counts until ctx is done.
func logStatus(ctx context.Context, eng *engine.Engine, logger *slog.Logger, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			counts, err := eng.Status(ctx)
			if err != nil {
				logger.Warn("status check failed", "error", err)
				continue
			}
			logger.Info("queue status",
				"pending", counts[job.StatePending],
				"running", counts[job.StateRunning],
				"succeeded", counts[job.StateSucceeded],
				"dead_letter", counts[job.StateDeadLetter],
			)
		}
	}
}

func storeName(cfg *fileConfig) string {
	if cfg.Store == "" {
		return "sqlite"
	}
	return cfg.Store
}
