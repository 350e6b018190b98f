// Package workerpool provides a fixed-size pool of workers consuming an
// unbounded FIFO task queue. Handlers and connection teardown run here so
// the reactor loop never blocks on the database or on registry locks.
package workerpool

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/logging"
)

// Task is a unit of work executed by one worker.
type Task func()

// Pool executes tasks on a fixed number of goroutines. Tasks are started
// in submission order but carry no cross-task ordering guarantee once
// running; shared-state serialisation is the registries' job.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	closed  bool
	workers int
	wg      sync.WaitGroup
}

// New creates a pool with the given number of workers. A non-positive
// size defaults to runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{workers: size}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.workers }

// Submit queues a task. Tasks submitted after Stop are dropped.
func (p *Pool) Submit(task Task) {
	if task == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Pending reports the number of queued, not-yet-started tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop drains the queue, then stops the workers and waits for in-flight
// tasks to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

// run executes one task, converting panics into error logs so a broken
// handler cannot kill a worker.
func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
