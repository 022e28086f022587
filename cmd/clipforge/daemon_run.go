package main

import (
	"github.com/spf13/cobra"

	"clipforge/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon process commands",
	}

	var opts daemonrun.Options
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	runCmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	runCmd.Flags().BoolVar(&opts.Development, "dev", false, "Enable development logging")

	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}
