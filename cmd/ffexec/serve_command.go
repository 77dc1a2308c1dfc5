package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ffexec/internal/api"
	"ffexec/internal/daemon"
	"ffexec/internal/logging"
	"ffexec/internal/preflight"
)

// drainTimeout bounds how long serve waits for queued jobs after shutdown.
const drainTimeout = 2 * time.Minute

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transcode API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(runCtx, cfg)); len(failed) > 0 {
					parts := make([]string, 0, len(failed))
					for _, result := range failed {
						parts = append(parts, result.Name+": "+result.Detail)
					}
					return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
				}
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
				defer cancel()
				if err := d.Close(drainCtx); err != nil {
					logger.Warn("daemon shutdown", logging.Error(err))
				}
			}()
			if err := d.Start(runCtx); err != nil {
				return err
			}

			addr := cfg.Paths.APIBind
			if strings.TrimSpace(bind) != "" {
				addr = strings.TrimSpace(bind)
			}
			srv := api.NewServer(api.Options{
				Addr:          addr,
				Adapter:       d.Adapter(),
				History:       d.History(),
				Metrics:       d.Metrics(),
				Logger:        logger,
				CORSOrigins:   cfg.API.CORSOrigins,
				MaxInputBytes: cfg.MaxInputBytes(),
			})
			return srv.Run(runCtx)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides paths.api_bind)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start even if preflight checks fail")
	return cmd
}
