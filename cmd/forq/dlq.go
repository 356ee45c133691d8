package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forqio/forq/job"
)

func newDLQCmd(configPath *string) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the dead letter queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := eng.DLQ().List(ctx, job.ListOpts{})
			if err != nil {
				return err
			}
			printJobs(jobs)
			return nil
		},
	}

	requeueCmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Move a dead-lettered job back to pending with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			j, err := eng.DLQ().Requeue(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("requeued %s\n", j.ID)
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every dead-lettered job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := eng.DLQ().Purge(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d job(s)\n", n)
			return nil
		},
	}

	dlqCmd.AddCommand(listCmd, requeueCmd, purgeCmd)
	return dlqCmd
}
