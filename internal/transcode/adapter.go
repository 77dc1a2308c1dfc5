// Package transcode runs one ffmpeg command against one input buffer on the
// shared engine and returns the output buffer.
//
// All work against the engine goes through a single task queue, so commands
// never overlap. Each task writes its input artifact, executes, reads the
// output artifact, and then deletes both artifacts on every path. Deletion
// failures are logged and counted but never change the task's result.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ffexec/internal/command"
	"ffexec/internal/engine"
	"ffexec/internal/ids"
	"ffexec/internal/logging"
	"ffexec/internal/taskqueue"
)

// Job describes a submitted transcode.
type Job struct {
	ID         string
	Command    []string
	OutputExt  string
	InputBytes int
}

// Outcome describes how a transcode ended.
type Outcome struct {
	OutputBytes int
	Duration    time.Duration
	Err         error
}

// Recorder persists job lifecycle events. Implementations must be safe for
// concurrent use; errors are logged and otherwise ignored.
type Recorder interface {
	Queued(ctx context.Context, job Job) error
	Started(ctx context.Context, id string) error
	Finished(ctx context.Context, id string, outcome Outcome) error
}

// Metrics receives transcode measurements.
type Metrics interface {
	ObserveTranscode(kind string, elapsed time.Duration)
	CleanupFailed(role string)
}

// Result is the output of a successful transcode.
type Result struct {
	JobID    string
	Output   []byte
	Duration time.Duration
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithRecorder attaches a job lifecycle recorder. Recorders are called in
// the order they were attached.
func WithRecorder(r Recorder) Option {
	return func(a *Adapter) {
		if r != nil {
			a.recorders = append(a.recorders, r)
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// Adapter serializes transcodes onto the shared engine.
type Adapter struct {
	engines   *engine.Lazy
	queue     *taskqueue.Queue[[]byte]
	logger    *slog.Logger
	recorders []Recorder
	metrics   Metrics
}

// New returns an adapter drawing its engine from engines.
func New(engines *engine.Lazy, opts ...Option) *Adapter {
	a := &Adapter{
		engines: engines,
		queue:   taskqueue.New[[]byte](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.logger = logging.NewComponentLogger(a.logger, "adapter")
	return a
}

// Transcode runs cmd against input and returns the bytes of the output
// artifact, named with ext. cmd may contain the FFMPEG, INPUT, and OUTPUT
// placeholders.
//
// If ctx ends while the job waits for its turn, Transcode returns ctx.Err();
// the job still runs in order, sees the cancelled context, and is recorded
// with its real outcome.
func (a *Adapter) Transcode(ctx context.Context, cmd []string, input []byte, ext string) (Result, error) {
	jobID := ids.NewJobID()
	ctx = logging.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, a.logger)
	res := Result{JobID: jobID}
	template := slices.Clone(cmd)
	queued := time.Now()

	a.recordQueued(ctx, logger, Job{ID: jobID, Command: template, OutputExt: ext, InputBytes: len(input)})

	if err := command.Validate(template); err != nil {
		err = wrap(ErrInvalidCommand, "validate command", err)
		a.complete(ctx, logger, jobID, Outcome{Duration: time.Since(queued), Err: err})
		return res, err
	}

	// The job takes its place in line before the engine is awaited, so jobs
	// submitted while the engine starts still run in arrival order.
	handle := a.queue.Submit(ctx, func(taskCtx context.Context) ([]byte, error) {
		eng, err := a.awaitEngine(taskCtx)
		if err != nil {
			a.complete(taskCtx, logger, jobID, Outcome{Duration: time.Since(queued), Err: err})
			return nil, err
		}
		a.recordStarted(taskCtx, logger, jobID)
		started := time.Now()
		out, err := a.run(taskCtx, logger, eng, template, input, ext)
		a.complete(taskCtx, logger, jobID, Outcome{OutputBytes: len(out), Duration: time.Since(started), Err: err})
		return out, err
	})
	if pending := a.queue.Pending(); pending > 0 {
		logger.Debug("transcode queued", logging.Int("ahead", pending-1))
	}

	out, err := handle.Wait(ctx)
	res.Duration = time.Since(queued)
	if errors.Is(err, taskqueue.ErrClosed) || errors.Is(err, taskqueue.ErrPanic) {
		// The task body never reached complete.
		a.complete(ctx, logger, jobID, Outcome{Duration: res.Duration, Err: err})
	}
	if err != nil {
		return res, err
	}
	res.Output = out
	return res, nil
}

func (a *Adapter) awaitEngine(ctx context.Context) (engine.Engine, error) {
	eng, err := a.engines.Get(ctx)
	if err == nil {
		return eng, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("await engine: %w", ctxErr)
	}
	if errors.Is(err, engine.ErrClosed) {
		return nil, err
	}
	return nil, wrap(ErrInitialization, "load engine", err)
}

// TranscodeReader reads input fully and calls Transcode.
func (a *Adapter) TranscodeReader(ctx context.Context, cmd []string, input io.Reader, ext string) (Result, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return Result{}, fmt.Errorf("read input: %w", err)
	}
	return a.Transcode(ctx, cmd, data, ext)
}

// run executes one job against eng. It is only ever called from the queue.
func (a *Adapter) run(ctx context.Context, logger *slog.Logger, eng engine.Engine, template []string, input []byte, ext string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("job abandoned before start: %w", err)
	}

	inName := ids.New("in_")
	outName := command.OutputName(ids.New("out_"), ext)
	args := command.Substitute(template, inName, outName)

	defer a.cleanup(context.WithoutCancel(ctx), logger, eng, inName, outName)

	started := time.Now()
	if err := eng.WriteFile(ctx, inName, input); err != nil {
		return nil, wrap(ErrExecution, "write input", err)
	}
	if err := eng.Exec(ctx, args); err != nil {
		return nil, wrap(ErrExecution, "exec", err)
	}
	contents, err := eng.ReadFile(ctx, outName)
	if err != nil {
		return nil, wrap(ErrExecution, "read output", err)
	}
	data, ok := contents.(engine.Binary)
	if !ok {
		return nil, wrap(ErrContractViolation, "read output", fmt.Errorf("expected binary data, got %T", contents))
	}

	elapsed := time.Since(started)
	logger.Debug("ffmpeg "+strings.Join(args, " "),
		logging.Int64("ms", elapsed.Milliseconds()),
		logging.Int("input_bytes", len(input)),
		logging.Int("output_bytes", len(data)),
	)
	return []byte(data), nil
}

// cleanup deletes both artifacts independently. Failures are logged only.
func (a *Adapter) cleanup(ctx context.Context, logger *slog.Logger, eng engine.Engine, inName, outName string) {
	for _, artifact := range []struct{ role, name string }{{"input", inName}, {"output", outName}} {
		if err := eng.DeleteFile(ctx, artifact.name); err != nil {
			logging.ErrorWithContext(logger, "failed to remove "+artifact.role+" artifact", "artifact_cleanup_failed",
				logging.String("artifact", artifact.name),
				logging.Error(wrap(ErrCleanup, "delete "+artifact.role, err)),
			)
			if a.metrics != nil {
				a.metrics.CleanupFailed(artifact.role)
			}
		}
	}
}

func (a *Adapter) complete(ctx context.Context, logger *slog.Logger, jobID string, outcome Outcome) {
	kind := Kind(outcome.Err)
	if a.metrics != nil {
		a.metrics.ObserveTranscode(kind, outcome.Duration)
	}
	if outcome.Err != nil {
		logger.Warn("transcode failed",
			logging.String("kind", kind),
			logging.Duration("elapsed", outcome.Duration),
			logging.Error(outcome.Err),
		)
	} else {
		logger.Info("transcode finished",
			logging.Int("output_bytes", outcome.OutputBytes),
			logging.Duration("elapsed", outcome.Duration),
		)
	}
	for _, r := range a.recorders {
		if err := r.Finished(context.WithoutCancel(ctx), jobID, outcome); err != nil {
			logger.Warn("record job outcome", logging.Error(err))
		}
	}
}

func (a *Adapter) recordQueued(ctx context.Context, logger *slog.Logger, job Job) {
	for _, r := range a.recorders {
		if err := r.Queued(context.WithoutCancel(ctx), job); err != nil {
			logger.Warn("record queued job", logging.Error(err))
		}
	}
}

func (a *Adapter) recordStarted(ctx context.Context, logger *slog.Logger, jobID string) {
	for _, r := range a.recorders {
		if err := r.Started(context.WithoutCancel(ctx), jobID); err != nil {
			logger.Warn("record job start", logging.Error(err))
		}
	}
}

// Pending reports jobs waiting behind the running one.
func (a *Adapter) Pending() int { return a.queue.Pending() }

// Busy reports whether a job is running or waiting.
func (a *Adapter) Busy() bool { return a.queue.Busy() }

// EngineState reports the shared engine's lifecycle state.
func (a *Adapter) EngineState() engine.State { return a.engines.State() }

// Close stops accepting jobs, waits for queued ones, and closes the engine.
// If ctx ends first, Close returns the drain error and the engine is closed
// in the background once the last queued job has finished.
func (a *Adapter) Close(ctx context.Context) error {
	if err := a.queue.Shutdown(ctx); err != nil {
		drained := a.queue.Drained()
		go func() {
			<-drained
			if closeErr := a.engines.Close(); closeErr != nil {
				a.logger.Warn("close engine after drain", logging.Error(closeErr))
			}
		}()
		return err
	}
	return a.engines.Close()
}
