// Command clipforged runs the clipforge daemon in the foreground. It is the
// service-manager entrypoint; interactive use goes through `clipforge`.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/daemonrun"
)

type runFunc func(ctx context.Context, cfg *config.Config, opts daemonrun.Options) error

func newRootCommand(run runFunc) *cobra.Command {
	var configFlag string
	var opts daemonrun.Options

	rootCmd := &cobra.Command{
		Use:           "clipforged",
		Short:         "Run the clipforge daemon in the foreground",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	rootCmd.Flags().BoolVar(&opts.Development, "dev", false, "Enable development logging")
	return rootCmd
}

func main() {
	cmd := newRootCommand(daemonrun.Run)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "clipforged: %v\n", err)
		}
		os.Exit(1)
	}
}
