package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"ffexec/internal/config"
	"ffexec/internal/engine"
	"ffexec/internal/history"
	"ffexec/internal/logging"
	"ffexec/internal/metrics"
	"ffexec/internal/notifications"
	"ffexec/internal/transcode"
)

// Daemon holds the adapter and its collaborators and enforces
// single-instance serving.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *history.Store
	metrics *metrics.Metrics
	engines *engine.Lazy
	adapter *transcode.Adapter
	notify  *notifications.Notifier

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	EngineKind   string
	EngineState  engine.State
	Pending      int
	Busy         bool
	HistoryPath  string
	LockFilePath string
	JobCounts    map[history.Status]int
}

// Option customizes New.
type Option func(*options)

type options struct {
	factory engine.Factory
	metrics *metrics.Metrics
}

// WithEngineFactory overrides the engine selected by configuration.
func WithEngineFactory(f engine.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithMetrics supplies the metrics set instead of creating a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New constructs the runtime. The engine is not loaded until the first job.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	factory := o.factory
	if factory == nil {
		var err error
		factory, err = EngineFactory(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	m := o.metrics
	if m == nil {
		m = metrics.New()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		metrics:  m,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		notify:   notifications.New(cfg, logger),
	}

	adapterOpts := []transcode.Option{
		transcode.WithLogger(logger),
		transcode.WithMetrics(m),
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.store = store
		adapterOpts = append(adapterOpts, transcode.WithRecorder(store))
	}
	if d.notify != nil {
		adapterOpts = append(adapterOpts, transcode.WithRecorder(d.notify))
	}

	d.engines = engine.NewLazy(factory,
		engine.WithLoadTimeout(cfg.LoadTimeout()),
		engine.WithLogger(logger),
		engine.WithInitObserver(d.observeEngineInit),
	)
	d.adapter = transcode.New(d.engines, adapterOpts...)
	m.TrackQueue(d.adapter.Pending, d.adapter.Busy)
	return d, nil
}

func (d *Daemon) observeEngineInit(err error, elapsed time.Duration) {
	d.metrics.EngineInitialized(err, elapsed)
	d.notify.EngineFailed(context.Background(), err)
}

// Adapter returns the transcode adapter.
func (d *Daemon) Adapter() *transcode.Adapter { return d.adapter }

// History returns the job store, nil when history is disabled.
func (d *Daemon) History() *history.Store { return d.store }

// Metrics returns the metrics set.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// Notifier returns the ntfy notifier, nil when no topic is configured.
func (d *Daemon) Notifier() *notifications.Notifier { return d.notify }

// Start acquires the daemon lock and fails jobs a previous process left
// active.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another ffexec daemon is already running (lock %s)", d.lockPath)
	}

	if d.store != nil {
		n, err := d.store.FailInterrupted(ctx)
		if err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("recover interrupted jobs: %w", err)
		}
		if n > 0 {
			d.logger.Warn("marked interrupted jobs as failed", logging.Int64("count", n))
		}
	}

	d.running.Store(true)
	d.logger.Info("ffexec daemon started",
		logging.String("lock", d.lockPath),
		logging.String("engine", d.cfg.Engine.Kind),
	)
	return nil
}

// Stop releases the daemon lock. Queued work keeps running until Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("ffexec daemon stopped")
}

// Close drains the queue, closes the engine, and releases every resource.
func (d *Daemon) Close(ctx context.Context) error {
	var errs []error
	if err := d.adapter.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close adapter: %w", err))
	}
	d.Stop()
	d.notify.Wait()
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Status reports runtime state. Job counts are omitted when history is
// disabled or unreadable.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		EngineKind:   d.cfg.Engine.Kind,
		EngineState:  d.adapter.EngineState(),
		Pending:      d.adapter.Pending(),
		Busy:         d.adapter.Busy(),
		LockFilePath: d.lockPath,
	}
	if d.store != nil {
		status.HistoryPath = d.store.Path()
		counts, err := d.store.Counts(ctx)
		if err != nil {
			d.logger.Warn("read job counts", logging.Error(err))
		} else {
			status.JobCounts = counts
		}
	}
	return status
}
