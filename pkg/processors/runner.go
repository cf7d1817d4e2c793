package processors

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrRunnerStopped is returned by Submit after Stop.
var ErrRunnerStopped = errors.New("processor runner stopped")

// Runner executes a chain on a worker goroutine so the target's consumer does
// not wait for compression. Submit blocks while the backlog is full; a closed
// file is never skipped.
type Runner struct {
	chain *Chain

	mu      sync.RWMutex
	jobs    chan File
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewRunner starts a worker for chain with a backlog of size pending files.
func NewRunner(chain *Chain, backlog int) *Runner {
	if backlog < 1 {
		backlog = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		chain:  chain,
		jobs:   make(chan File, backlog),
		ctx:    ctx,
		cancel: cancel,
	}
	r.wg.Add(1)
	go r.work()
	return r
}

func (r *Runner) work() {
	defer r.wg.Done()
	for f := range r.jobs {
		_ = r.chain.Run(r.ctx, f) // failures reach the chain's error handler
	}
}

// Submit queues f for processing.
func (r *Runner) Submit(f File) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	r.jobs <- f
	return nil
}

// Pending returns the number of files waiting.
func (r *Runner) Pending() int {
	return len(r.jobs)
}

// Stop waits for every submitted file to be processed. With abort the files
// still waiting are skipped by cancelling the context the processors see.
func (r *Runner) Stop(abort bool) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.jobs)
	r.mu.Unlock()

	if abort {
		r.cancel()
	}
	r.wg.Wait()
	r.cancel()
}
