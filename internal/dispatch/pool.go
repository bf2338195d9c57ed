// Package dispatch runs a chosen engine over the pages of a document with
// bounded concurrency, per-page timeouts, and a retry/fallback policy.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// Task is one unit of page work. The worker id identifies the pool slot so
// non-reentrant engine instances can be bound to a single worker.
type Task func(workerID int)

// Pool is a fixed-size worker pool created once at process start and shared
// across concurrent requests. Queue depth equals the worker count, so
// submissions block when the pool is saturated, which is the intended
// backpressure.
type Pool struct {
	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	workers int
}

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// NewPool creates and starts a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		tasks:   make(chan Task, workers),
		workers: workers,
	}
	for id := range workers {
		p.wg.Add(1)
		go p.run(id)
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for fn := range p.tasks {
		fn(id)
	}
}

// Submit enqueues a task, blocking while the pool is saturated. It returns
// the context error if ctx ends before the task is accepted.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queue and waits for in-flight tasks to finish. Safe to
// call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
