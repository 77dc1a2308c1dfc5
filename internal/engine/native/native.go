// Package native runs ffmpeg as a subprocess against a private workspace
// directory under the scratch root.
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"ffexec/internal/config"
	"ffexec/internal/deps"
	"ffexec/internal/engine"
	"ffexec/internal/logging"
)

// Options configures a native engine.
type Options struct {
	Binary      string
	GlobalArgs  []string
	ScratchDir  string
	ExecTimeout time.Duration
	Logger      *slog.Logger
}

// Engine implements engine.Engine with an ffmpeg binary.
type Engine struct {
	opts   Options
	logger *slog.Logger

	binary string
	ws     *engine.Workspace
}

// New returns an unloaded engine.
func New(opts Options) *Engine {
	return &Engine{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "native"),
	}
}

// Factory returns an engine.Factory building native engines from cfg.
func Factory(cfg *config.Config, logger *slog.Logger) engine.Factory {
	return func(context.Context) (engine.Engine, error) {
		return New(Options{
			Binary:      cfg.Engine.FFmpegBinary,
			GlobalArgs:  cfg.Engine.GlobalArgs,
			ScratchDir:  cfg.Paths.ScratchDir,
			ExecTimeout: cfg.ExecTimeout(),
			Logger:      logger,
		}), nil
	}
}

// Workspace returns the private storage directory, empty before Load.
func (e *Engine) Workspace() string {
	if e.ws == nil {
		return ""
	}
	return e.ws.Dir()
}

func (e *Engine) Load(ctx context.Context) error {
	if e.ws != nil {
		return errors.New("native engine already loaded")
	}

	binary, err := deps.ResolveFFmpegPath(e.opts.Binary)
	if err != nil {
		return err
	}

	ws, err := engine.OpenWorkspace(e.opts.ScratchDir, e.logger)
	if err != nil {
		return err
	}

	version := exec.CommandContext(ctx, binary, "-version")
	var stderr bytes.Buffer
	version.Stderr = &stderr
	if err := version.Run(); err != nil {
		_ = ws.Close()
		return fmt.Errorf("ffmpeg smoke test: %w: %s", err, engine.TailStderr(stderr.Bytes()))
	}

	e.binary = binary
	e.ws = ws
	e.logger.Info("native engine loaded",
		logging.String("binary", binary),
		logging.String("workspace", ws.Dir()),
	)
	return nil
}

func (e *Engine) WriteFile(_ context.Context, name string, data []byte) error {
	return e.ws.WriteFile(name, data)
}

// Exec runs ffmpeg inside the workspace with stdin detached.
func (e *Engine) Exec(ctx context.Context, args []string) error {
	if e.ws == nil || e.ws.Dir() == "" {
		return engine.ErrNotLoaded
	}
	if e.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ExecTimeout)
		defer cancel()
	}

	full := make([]string, 0, len(e.opts.GlobalArgs)+len(args))
	full = append(full, e.opts.GlobalArgs...)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, e.binary, full...)
	cmd.Dir = e.ws.Dir()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &engine.ExecError{ExitCode: -1, Stderr: engine.TailStderr(stderr.Bytes()), Err: ctxErr}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &engine.ExecError{ExitCode: exitErr.ExitCode(), Stderr: engine.TailStderr(stderr.Bytes()), Err: err}
	}
	return fmt.Errorf("run ffmpeg: %w", err)
}

func (e *Engine) ReadFile(_ context.Context, name string) (engine.Contents, error) {
	data, err := e.ws.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return engine.Binary(data), nil
}

func (e *Engine) DeleteFile(_ context.Context, name string) error {
	return e.ws.DeleteFile(name)
}

// Close removes the workspace and releases its lock.
func (e *Engine) Close() error {
	if e.ws == nil {
		return nil
	}
	dir := e.ws.Dir()
	err := e.ws.Close()
	e.logger.Debug("native engine closed", logging.String("workspace", dir))
	return err
}
