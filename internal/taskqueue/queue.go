// Package taskqueue runs submitted tasks one at a time in arrival order.
//
// A Queue guards a resource that must never see two callers at once. Submit
// never blocks: it appends the task and returns a Handle. A single drain
// goroutine runs pending tasks back to back and exits when the list is empty;
// the next Submit starts a new one. A task that fails or panics resolves its
// own handle and the queue moves on.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed resolves handles submitted after Close.
	ErrClosed = errors.New("task queue closed")
	// ErrPanic marks a task that panicked instead of returning.
	ErrPanic = errors.New("task panicked")
	// ErrPending is returned by Handle.Result before the task has finished.
	ErrPending = errors.New("task still pending")
)

// Task is a unit of work. It receives the context passed to Submit.
type Task[T any] func(ctx context.Context) (T, error)

// Queue serializes tasks. The zero value is not usable; call New.
type Queue[T any] struct {
	mu      sync.Mutex
	pending []*Handle[T]
	busy    bool
	closed  bool
	seq     uint64
	drained chan struct{}
}

// New returns an empty, idle queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Submit appends task to the queue and returns its handle immediately.
func (q *Queue[T]) Submit(ctx context.Context, task Task[T]) *Handle[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	q.seq++
	h := &Handle[T]{seq: q.seq, ctx: ctx, task: task, done: make(chan struct{})}
	if q.closed {
		q.mu.Unlock()
		h.resolve(*new(T), ErrClosed)
		return h
	}
	q.pending = append(q.pending, h)
	start := !q.busy
	if start {
		q.busy = true
		q.drained = make(chan struct{})
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return h
}

func (q *Queue[T]) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.busy = false
			close(q.drained)
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		next.run()
	}
}

// Pending reports how many tasks are waiting behind the running one.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Busy reports whether a task is running or waiting.
func (q *Queue[T]) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Close stops accepting new tasks. Tasks already submitted still run.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Shutdown closes the queue and waits until every submitted task has finished
// or ctx ends.
func (q *Queue[T]) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	if !q.busy {
		q.mu.Unlock()
		return nil
	}
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for queued tasks: %w", ctx.Err())
	}
}

// Drained returns a channel that is closed once no task is running or
// waiting. After Close it stays closed for good.
func (q *Queue[T]) Drained() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.busy {
		done := make(chan struct{})
		close(done)
		return done
	}
	return q.drained
}

// Handle is the caller's view of one submitted task.
type Handle[T any] struct {
	seq  uint64
	ctx  context.Context
	task Task[T]

	done  chan struct{}
	value T
	err   error
}

// Seq returns the arrival position of the task, starting at 1.
func (h *Handle[T]) Seq() uint64 { return h.seq }

// Done is closed once the task has finished.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx ends. Returning early on ctx does
// not withdraw the task; it still runs in its turn.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (h *Handle[T]) Result() (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	default:
		var zero T
		return zero, ErrPending
	}
}

func (h *Handle[T]) run() {
	var (
		value T
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				value = zero
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		value, err = h.task(h.ctx)
	}()
	h.resolve(value, err)
}

func (h *Handle[T]) resolve(value T, err error) {
	h.value = value
	h.err = err
	h.task = nil
	h.ctx = nil
	close(h.done)
}
