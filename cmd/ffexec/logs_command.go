package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ffexec/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the ffexec log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return logs.Tail(runCtx, cfg.LogFilePath(), cmd.OutOrStdout(), logs.Options{
				Lines:  lines,
				Follow: follow,
				Match:  strings.TrimSpace(jobID),
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of existing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines mentioning this job id")
	return cmd
}
