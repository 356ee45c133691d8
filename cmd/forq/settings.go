package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/forqio/forq/settings"
)

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write store-backed runtime settings",
		Long: `Read and write runtime settings. Settings live in the job store, so a
value set here is picked up by running workers without a restart.

Keys:
  default_max_retries  retry budget for jobs enqueued without one
  base_backoff         base of the exponential retry delay (e.g. 2s)`,
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			switch args[0] {
			case settings.KeyDefaultMaxRetries:
				fmt.Println(eng.Settings().DefaultMaxRetries(ctx))
			case settings.KeyBaseBackoff:
				fmt.Println(eng.Settings().BaseBackoff(ctx))
			default:
				return fmt.Errorf("unknown setting %q", args[0])
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			key, value := args[0], args[1]
			switch key {
			case settings.KeyDefaultMaxRetries:
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
				}
				if err := eng.Settings().SetDefaultMaxRetries(ctx, n); err != nil {
					return err
				}
			case settings.KeyBaseBackoff:
				d, err := time.ParseDuration(value)
				if err != nil {
					return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
				}
				if err := eng.Settings().SetBaseBackoff(ctx, d); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown setting %q", key)
			}
			fmt.Printf("%s = %s\n", key, value)
			return nil
		},
	}

	configCmd.AddCommand(getCmd, setCmd)
	return configCmd
}
