package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ffexec/internal/api"
	"ffexec/internal/history"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain the job history",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsPruneCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]history.Status, 0, len(statusFlags))
			for _, raw := range statusFlags {
				status, err := history.ParseStatus(raw)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			return ctx.withHistory(func(store *history.Store) error {
				jobs, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					out := make([]api.Job, 0, len(jobs))
					for _, job := range jobs {
						out = append(out, api.FromJob(job))
					}
					return writeJSON(cmd, out)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (queued, running, succeeded, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum jobs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				job, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromJob(job))
				}
				printJobDetail(cmd, job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every finished job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				n, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", n)
				return nil
			})
		},
	}
}

func newJobsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			window := olderThan
			if window <= 0 {
				window = time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
			}
			if window <= 0 {
				return errors.New("no retention window: pass --older-than or set history.retention_days")
			}
			return ctx.withHistory(func(store *history.Store) error {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-window))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d job(s) older than %s\n", n, window)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff, e.g. 72h (defaults to history.retention_days)")
	return cmd
}

func renderJobTable(jobs []*history.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			string(job.Status),
			formatBytes(job.InputBytes),
			formatBytes(job.OutputBytes),
			formatDuration(job.Duration),
			job.ErrorKind,
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "In", "Out", "Took", "Error", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func printJobDetail(cmd *cobra.Command, job *history.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", job.ID)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Command:   %s\n", quoteCommand(job.Command))
	if job.OutputExt != "" {
		fmt.Fprintf(out, "Extension: %s\n", job.OutputExt)
	}
	fmt.Fprintf(out, "Input:     %s\n", formatBytes(job.InputBytes))
	fmt.Fprintf(out, "Output:    %s\n", formatBytes(job.OutputBytes))
	fmt.Fprintf(out, "Duration:  %s\n", formatDuration(job.Duration))
	fmt.Fprintf(out, "Created:   %s\n", formatTimestamp(job.CreatedAt))
	fmt.Fprintf(out, "Started:   %s\n", formatTimestamp(job.StartedAt))
	fmt.Fprintf(out, "Finished:  %s\n", formatTimestamp(job.FinishedAt))
	if job.ErrorKind != "" || job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     [%s] %s\n", job.ErrorKind, job.ErrorMessage)
	}
}

func quoteCommand(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, token := range tokens {
		if token == "" || strings.ContainsAny(token, " \t\"'") {
			parts[i] = strconv.Quote(token)
		} else {
			parts[i] = token
		}
	}
	return strings.Join(parts, " ")
}
