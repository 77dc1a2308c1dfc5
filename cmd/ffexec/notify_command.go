package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ffexec/internal/logging"
	"ffexec/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			notifier := notifications.New(cfg, logging.NewNop())
			if notifier == nil {
				return errors.New("notifications.ntfy_topic is not set")
			}
			if err := notifier.Test(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent to %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	}
}
