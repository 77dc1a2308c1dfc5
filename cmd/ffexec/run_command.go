package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ffexec/internal/daemon"
	"ffexec/internal/fileutil"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var outputPath string
	var ext string

	cmd := &cobra.Command{
		Use:   "run -i INPUT_FILE -o OUTPUT_FILE -- FFMPEG [args...]",
		Short: "Run one ffmpeg command against a local file",
		Long: `Run one ffmpeg command against a local file.

Tokens after -- form the command. FFMPEG, INPUT, and OUTPUT are replaced with
the engine name and the private artifact names, for example:

  ffexec run -i clip.mov -o clip.mp4 -- FFMPEG -i INPUT -c:v libx264 OUTPUT

Use -o - to write the result to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(inputPath) == "" {
				return errors.New("--input is required")
			}
			if strings.TrimSpace(outputPath) == "" {
				return errors.New("--output is required")
			}
			if ext == "" && outputPath != "-" {
				ext = strings.TrimPrefix(filepath.Ext(outputPath), ".")
			}

			input, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close(context.Background()) }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := d.Adapter().Transcode(runCtx, args, input, ext)
			if err != nil {
				return fmt.Errorf("job %s: %w", res.JobID, err)
			}

			if outputPath == "-" {
				if _, err := cmd.OutOrStdout().Write(res.Output); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			} else if err := fileutil.WriteFileAtomic(outputPath, res.Output, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "job %s: %d bytes in %s\n",
				res.JobID, len(res.Output), res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input media file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file, or - for stdout")
	cmd.Flags().StringVar(&ext, "ext", "", "Output artifact extension (defaults to the output file's)")
	return cmd
}
