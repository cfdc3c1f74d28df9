// Package tasks is a small in-process background queue. Work is
// submitted as named functions and executed by a fixed worker pool
// with bounded retries. It backs email delivery and other side effects
// that must not hold up request handlers.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"stackpad.org/internal/obs"
)

// ErrQueueClosed is returned by Enqueue after Close or Drain.
var ErrQueueClosed = errors.New("tasks: queue closed")

// ErrQueueFull is returned when the buffer is full and the task cannot
// be accepted without blocking.
var ErrQueueFull = errors.New("tasks: queue full")

// Func is one unit of background work. A non-nil error triggers a
// retry until the attempt budget runs out.
type Func func(ctx context.Context) error

type task struct {
	name    string
	fn      Func
	attempt int
}

// Queue runs submitted tasks on a fixed pool of workers.
type Queue struct {
	ch         chan task
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	maxRetries int
	backoff    time.Duration
	baseCtx    context.Context
	cancel     context.CancelFunc
}

type Option func(*Queue)

// WithMaxRetries sets how many times a failing task is retried.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithRetryBackoff sets the pause before a retry. The pause grows
// linearly with the attempt number.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) { q.backoff = d }
}

// New starts a queue with the given worker count and buffer size.
func New(workers, buffer int, opts ...Option) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ch:         make(chan task, buffer),
		maxRetries: 3,
		backoff:    time.Second,
		baseCtx:    ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Enqueue submits a task. It never blocks: a full buffer is an error
// the caller decides how to handle.
func (q *Queue) Enqueue(name string, fn Func) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- task{name: name, fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.ch {
		q.run(t)
	}
}

func (q *Queue) run(t task) {
	for {
		err := t.fn(q.baseCtx)
		if err == nil {
			return
		}
		t.attempt++
		obs.LogRequest(map[string]any{
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
			"level":   "warn",
			"msg":     "background task failed",
			"task":    t.name,
			"attempt": t.attempt,
			"error":   err.Error(),
		})
		if t.attempt > q.maxRetries {
			return
		}
		select {
		case <-q.baseCtx.Done():
			return
		case <-time.After(q.backoff * time.Duration(t.attempt)):
		}
	}
}

// Drain stops accepting work and waits for queued tasks to finish or
// the context to expire. Tasks still running when the context expires
// are cancelled through their task context.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
