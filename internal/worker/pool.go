// Package worker provides a bounded task pool for signal dispatch.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolFull is returned when the pool's queue cannot take another task.
var ErrPoolFull = errors.New("worker pool queue full")

// ErrPoolClosed is returned when submitting to a stopped pool.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is a unit of work executed on a pool worker.
type Task func(ctx context.Context) error

// Handle tracks one submitted task. The submitter may await the result or
// detach; the task runs either way.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task finishes or ctx is done, and returns the
// task's error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the task finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

type job struct {
	task   Task
	handle *Handle
}

// Pool runs tasks on a fixed set of workers with a bounded queue.
type Pool struct {
	logger   *slog.Logger
	jobs     chan job
	capacity int
	wg       sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inFlight int
}

// NewPool starts a pool with the given worker count and queue depth.
func NewPool(ctx context.Context, workers, queueDepth int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	// The channel buffers one slot per admitted task so an accepted Submit
	// never blocks; admission itself is bounded by the in-flight count.
	p := &Pool{
		logger:   logger,
		jobs:     make(chan job, workers+queueDepth),
		capacity: workers + queueDepth,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	return p
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		j.handle.err = j.task(ctx)
		if j.handle.err != nil {
			p.logger.Warn("task failed", "worker", id, "error", j.handle.err)
		}
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
		close(j.handle.done)
	}
}

// Submit queues a task and returns its handle. Returns ErrPoolFull only when
// every worker is busy and the queue is saturated, rather than blocking the
// caller.
func (p *Pool) Submit(task Task) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.inFlight >= p.capacity {
		return nil, ErrPoolFull
	}
	p.inFlight++

	h := &Handle{done: make(chan struct{})}
	p.jobs <- job{task: task, handle: h}
	return h, nil
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
