package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ffexec/internal/config"
	"ffexec/internal/history"
	"ffexec/internal/preflight"
)

var errPreflightFailed = errors.New("one or more checks failed")

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, dependencies, and job history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Configuration", colorize)
			lines = append(lines,
				renderStatusLine("Config file", statusInfo, ctx.configPath, colorize),
				renderStatusLine("Engine", statusInfo, engineSummary(cfg), colorize),
				renderStatusLine("Scratch directory", statusInfo, cfg.Paths.ScratchDir, colorize),
				renderStatusLine("API bind", statusInfo, cfg.Paths.APIBind, colorize),
				renderStatusLine("Notifications", statusInfo, notifySummary(cfg), colorize),
			)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Job history", colorize)...)
			lines = append(lines, historyLines(cmd, cfg, colorize)...)

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if len(preflight.Failed(results)) > 0 {
				return errPreflightFailed
			}
			return nil
		},
	}
}

func engineSummary(cfg *config.Config) string {
	switch cfg.Engine.Kind {
	case config.EngineWasm:
		return "wasm (" + cfg.Engine.WasmModule + ")"
	default:
		return "native (" + cfg.Engine.FFmpegBinary + ")"
	}
}

func notifySummary(cfg *config.Config) string {
	if cfg.Notifications.NtfyTopic == "" {
		return "disabled"
	}
	if cfg.Notifications.NotifySuccess {
		return cfg.Notifications.NtfyTopic + " (all jobs)"
	}
	return cfg.Notifications.NtfyTopic + " (failures)"
}

func historyLines(cmd *cobra.Command, cfg *config.Config, colorize bool) []string {
	if !cfg.History.Enabled {
		return []string{renderStatusLine("History", statusWarn, "disabled", colorize)}
	}
	store, err := history.Open(cfg)
	if err != nil {
		return []string{renderStatusLine("History", statusError, err.Error(), colorize)}
	}
	defer store.Close()

	counts, err := store.Counts(cmd.Context())
	if err != nil {
		return []string{renderStatusLine("History", statusError, err.Error(), colorize)}
	}

	lines := []string{renderStatusLine("Database", statusOK, store.Path(), colorize)}
	order := []history.Status{history.StatusQueued, history.StatusRunning, history.StatusSucceeded, history.StatusFailed}
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		rows = append(rows, []string{string(status), strconv.Itoa(counts[status])})
	}
	lines = append(lines, renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
	return lines
}
