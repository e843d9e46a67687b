// Package workerpool runs submitted tasks on a fixed set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/creachadair/taskgroup"

	"github.com/bazaarnet/bazaar/libs/log"
)

// ErrPoolClosed is returned by Submit after Stop has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is the handle for a submitted unit of work.
type Task struct {
	fn   func() error
	err  error
	done chan struct{}
}

// Done is closed once the task has run.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the error the task finished with. It is only meaningful after
// Done is closed.
func (t *Task) Err() error { return t.err }

// Wait blocks until the task has run or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) run() {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	t.err = t.fn()
}

// Pool executes tasks in submission order across a fixed number of workers.
// Tasks already queued when Stop is called still run.
type Pool struct {
	logger log.Logger
	size   int

	mtx     sync.Mutex
	cond    *sync.Cond
	tasks   []*Task
	stopped bool

	workers *taskgroup.Group
}

// New starts a pool of size workers. A size of zero or less uses the number
// of CPUs.
func New(logger log.Logger, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	p := &Pool{
		logger:  logger,
		size:    size,
		workers: taskgroup.New(nil),
	}
	p.cond = sync.NewCond(&p.mtx)

	for i := 0; i < size; i++ {
		id := i
		p.workers.Go(func() error {
			p.worker(id)
			return nil
		})
	}
	return p
}

// Submit enqueues fn for execution.
func (p *Pool) Submit(fn func() error) (*Task, error) {
	t := &Task{fn: fn, done: make(chan struct{})}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.stopped {
		return nil, ErrPoolClosed
	}
	p.tasks = append(p.tasks, t)
	p.cond.Signal()
	return t, nil
}

// Stop refuses further submissions, waits for queued tasks to finish and
// joins all workers. It is safe to call more than once.
func (p *Pool) Stop() {
	p.mtx.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mtx.Unlock()

	_ = p.workers.Wait()
}

// Len returns the number of tasks waiting for a worker.
func (p *Pool) Len() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return len(p.tasks)
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

func (p *Pool) worker(id int) {
	for {
		t, ok := p.next()
		if !ok {
			return
		}

		t.run()
		if t.err != nil {
			p.logger.Debug("task failed", "worker", id, "err", t.err)
		}
	}
}

// next blocks for the next task. It returns false once the pool is stopped
// and drained.
func (p *Pool) next() (*Task, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for len(p.tasks) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.tasks) == 0 {
		return nil, false
	}

	t := p.tasks[0]
	p.tasks[0] = nil
	p.tasks = p.tasks[1:]
	return t, true
}
