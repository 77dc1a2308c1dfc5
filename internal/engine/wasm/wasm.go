// Package wasm runs an ffmpeg build compiled to WebAssembly (WASI preview1)
// inside a wazero sandbox.
//
// The guest sees the engine workspace mounted at "/" and nothing else of the
// host filesystem. Every Exec instantiates a fresh module instance, so guest
// state never leaks between commands. argv[0] is always "ffmpeg", which is why
// command templates drop their FFMPEG placeholder.
package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"ffexec/internal/config"
	"ffexec/internal/engine"
	"ffexec/internal/logging"
)

const programName = "ffmpeg"

// Options configures a wasm engine.
type Options struct {
	// Module is a local path or http(s) URL of the ffmpeg .wasm binary.
	Module      string
	CacheDir    string
	ScratchDir  string
	GlobalArgs  []string
	ExecTimeout time.Duration
	Logger      *slog.Logger
	Downloader  *Downloader
}

// Engine implements engine.Engine on top of a wazero runtime.
type Engine struct {
	opts   Options
	logger *slog.Logger

	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
	ws       *engine.Workspace
}

// New returns an unloaded engine.
func New(opts Options) *Engine {
	logger := logging.NewComponentLogger(opts.Logger, "wasm")
	if opts.Downloader == nil {
		opts.Downloader = NewDownloader(opts.CacheDir, logger)
	}
	return &Engine{opts: opts, logger: logger}
}

// Factory returns an engine.Factory building wasm engines from cfg.
func Factory(cfg *config.Config, logger *slog.Logger) engine.Factory {
	return func(context.Context) (engine.Engine, error) {
		return New(Options{
			Module:      cfg.Engine.WasmModule,
			CacheDir:    cfg.Engine.WasmCacheDir,
			ScratchDir:  cfg.Paths.ScratchDir,
			GlobalArgs:  cfg.Engine.GlobalArgs,
			ExecTimeout: cfg.ExecTimeout(),
			Logger:      logger,
		}), nil
	}
}

// Workspace returns the directory mounted as the guest root, empty before Load.
func (e *Engine) Workspace() string {
	if e.ws == nil {
		return ""
	}
	return e.ws.Dir()
}

// Load fetches and compiles the module and prepares guest storage.
func (e *Engine) Load(ctx context.Context) error {
	if e.runtime != nil {
		return errors.New("wasm engine already loaded")
	}

	modulePath, err := e.opts.Downloader.Fetch(ctx, e.opts.Module)
	if err != nil {
		return err
	}
	wasmBytes, err := os.ReadFile(modulePath)
	if err != nil {
		return fmt.Errorf("read wasm module: %w", err)
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.opts.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(e.opts.CacheDir)
		if err != nil {
			return fmt.Errorf("open compilation cache: %w", err)
		}
		e.cache = cache
		rtConfig = rtConfig.WithCompilationCache(cache)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		e.closeRuntime(ctx, runtime)
		return fmt.Errorf("instantiate wasi: %w", err)
	}

	started := time.Now()
	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		e.closeRuntime(ctx, runtime)
		return fmt.Errorf("compile wasm module: %w", err)
	}

	ws, err := engine.OpenWorkspace(e.opts.ScratchDir, e.logger)
	if err != nil {
		e.closeRuntime(ctx, runtime)
		return err
	}

	e.runtime = runtime
	e.compiled = compiled
	e.ws = ws
	e.logger.Info("wasm engine loaded",
		logging.String("module", modulePath),
		logging.Duration("compile", time.Since(started)),
		logging.String("workspace", ws.Dir()),
	)
	return nil
}

func (e *Engine) closeRuntime(ctx context.Context, runtime wazero.Runtime) {
	if err := runtime.Close(ctx); err != nil {
		e.logger.Warn("close wasm runtime", logging.Error(err))
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			e.logger.Warn("close compilation cache", logging.Error(err))
		}
		e.cache = nil
	}
}

func (e *Engine) WriteFile(_ context.Context, name string, data []byte) error {
	return e.ws.WriteFile(name, data)
}

// Exec instantiates the module once with argv ["ffmpeg", global args..., args...].
func (e *Engine) Exec(ctx context.Context, args []string) error {
	if e.runtime == nil || e.ws == nil || e.ws.Dir() == "" {
		return engine.ErrNotLoaded
	}
	if e.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ExecTimeout)
		defer cancel()
	}

	argv := make([]string, 0, 1+len(e.opts.GlobalArgs)+len(args))
	argv = append(argv, programName)
	argv = append(argv, e.opts.GlobalArgs...)
	argv = append(argv, args...)

	var stdout, stderr bytes.Buffer
	modConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs(argv...).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(e.ws.Dir(), "/")).
		WithSysWalltime().
		WithSysNanotime()

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, modConfig)
	if mod != nil {
		_ = mod.Close(ctx)
	}
	if err == nil {
		return nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &engine.ExecError{ExitCode: -1, Stderr: engine.TailStderr(stderr.Bytes()), Err: ctxErr}
		}
		return &engine.ExecError{ExitCode: int(exitErr.ExitCode()), Stderr: engine.TailStderr(stderr.Bytes()), Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &engine.ExecError{ExitCode: -1, Stderr: engine.TailStderr(stderr.Bytes()), Err: ctxErr}
	}
	return fmt.Errorf("run wasm module: %w", err)
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

// Close shuts down the runtime and removes guest storage.
func (e *Engine) Close() error {
	ctx := context.Background()
	var errs []error
	if e.runtime != nil {
		if err := e.runtime.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close wasm runtime: %w", err))
		}
		e.runtime = nil
		e.compiled = nil
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close compilation cache: %w", err))
		}
		e.cache = nil
	}
	if e.ws != nil {
		if err := e.ws.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
