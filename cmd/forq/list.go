package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forqio/forq/job"
)

func newListCmd(configPath *string) *cobra.Command {
	var (
		state  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var filter job.State
			if state != "" {
				filter = job.State(state)
				if !validState(filter) {
					return fmt.Errorf("unknown state %q (want pending, running, succeeded, or dead_letter)", state)
				}
			}

			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := eng.Store().List(ctx, filter, job.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			printJobs(jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending, running, succeeded, dead_letter)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to print (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			counts, err := eng.Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range job.States() {
				fmt.Printf("%-12s %d\n", s, counts[s])
			}
			return nil
		},
	}
}

func validState(s job.State) bool {
	for _, known := range job.States() {
		if s == known {
			return true
		}
	}
	return false
}

func printJobs(jobs []*job.Job) {
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPTS\tCOMMAND\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.State, j.Attempts, j.MaxRetries+1, j.Command, j.LastError)
	}
	w.Flush()
}
