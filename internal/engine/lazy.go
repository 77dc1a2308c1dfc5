package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ffexec/internal/logging"
)

// ErrClosed is returned by Lazy.Get after Close.
var ErrClosed = errors.New("engine closed")

// State is the lifecycle position of a Lazy holder.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InitObserver receives the outcome of every initialization attempt.
type InitObserver func(err error, elapsed time.Duration)

// Lazy constructs and loads the shared engine on first use. Concurrent callers
// of Get during construction wait for the same attempt. A failed attempt is
// delivered to everyone waiting on it and then forgotten, so the next Get
// starts a fresh attempt.
type Lazy struct {
	factory  Factory
	timeout  time.Duration
	logger   *slog.Logger
	observer InitObserver

	mu       sync.Mutex
	state    State
	inflight *initCall
	engine   Engine
	closed   bool
}

type initCall struct {
	done   chan struct{}
	engine Engine
	err    error
}

// LazyOption customizes a Lazy holder.
type LazyOption func(*Lazy)

// WithLoadTimeout bounds each construction attempt. Zero means no bound.
func WithLoadTimeout(d time.Duration) LazyOption {
	return func(l *Lazy) { l.timeout = d }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) LazyOption {
	return func(l *Lazy) { l.logger = logger }
}

// WithInitObserver registers a callback invoked after every attempt.
func WithInitObserver(fn InitObserver) LazyOption {
	return func(l *Lazy) { l.observer = fn }
}

// NewLazy returns an idle holder that will build engines with factory.
func NewLazy(factory Factory, opts ...LazyOption) *Lazy {
	l := &Lazy{factory: factory}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.logger = logging.NewComponentLogger(l.logger, "engine")
	return l
}

// Get returns the loaded engine, starting construction if nothing is running.
// Construction is detached from ctx: a caller that gives up does not abort the
// attempt other callers are waiting on.
func (l *Lazy) Get(ctx context.Context) (Engine, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.state == StateReady {
		eng := l.engine
		l.mu.Unlock()
		return eng, nil
	}
	call := l.inflight
	if call == nil {
		call = &initCall{done: make(chan struct{})}
		l.inflight = call
		l.state = StateInitializing
		go l.initialize(call)
	}
	l.mu.Unlock()

	select {
	case <-call.done:
		return call.engine, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Lazy) initialize(call *initCall) {
	ctx := context.Background()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	started := time.Now()
	l.logger.Debug("engine initialization started")
	eng, err := l.build(ctx)
	elapsed := time.Since(started)

	l.mu.Lock()
	switch {
	case err != nil:
		l.state = StateIdle
	case l.closed:
		err = ErrClosed
		l.state = StateIdle
	default:
		l.engine = eng
		l.state = StateReady
	}
	l.inflight = nil
	l.mu.Unlock()

	if err != nil && eng != nil {
		if closeErr := eng.Close(); closeErr != nil {
			l.logger.Warn("discard engine after failed initialization", logging.Error(closeErr))
		}
		eng = nil
	}

	if err != nil {
		l.logger.Error("engine initialization failed",
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
			logging.String(logging.FieldEventType, "engine_init_failed"),
		)
	} else {
		l.logger.Info("engine ready", logging.Duration("elapsed", elapsed))
	}
	if l.observer != nil {
		l.observer(err, elapsed)
	}

	call.engine, call.err = eng, err
	close(call.done)
}

func (l *Lazy) build(ctx context.Context) (eng Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine construction panicked: %v", r)
		}
	}()
	eng, err = l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct engine: %w", err)
	}
	if eng == nil {
		return nil, errors.New("construct engine: factory returned nil")
	}
	if err := eng.Load(ctx); err != nil {
		return eng, fmt.Errorf("load engine: %w", err)
	}
	return eng, nil
}

// State reports the holder's lifecycle position.
func (l *Lazy) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Close closes a ready engine and makes later Get calls fail. An attempt in
// flight finishes, and its engine is closed instead of published.
func (l *Lazy) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	eng := l.engine
	l.engine = nil
	if l.state == StateReady {
		l.state = StateIdle
	}
	l.mu.Unlock()

	if eng == nil {
		return nil
	}
	if err := eng.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}
