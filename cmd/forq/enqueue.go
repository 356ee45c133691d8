package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forqio/forq/engine"
)

func newEnqueueCmd(configPath *string) *cobra.Command {
	var (
		jobID      string
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <command>",
		Short: "Add a job to the queue",
		Long: `Add a job to the queue. The command is a single argument and is split
into an argv without a shell; quote it:

  forq enqueue 'sh -c "curl -s https://example.com | wc -c"'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			req := engine.EnqueueRequest{ID: jobID, Command: args[0]}
			if cmd.Flags().Changed("max-retries") {
				req.MaxRetries = &maxRetries
			}

			j, err := eng.Enqueue(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("enqueued %s (max_retries=%d)\n", j.ID, j.MaxRetries)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "job id (generated when empty)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry budget for this job (default from settings)")
	return cmd
}
