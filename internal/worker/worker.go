package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a fire-and-forget unit of background work. Tasks are best effort:
// their failures update display state at most and are never propagated.
type Task func(ctx context.Context)

// Pool runs best-effort background tasks (address lookups, remote recording
// registration) off the submission path. Submit never blocks; when the buffer
// is full the task is dropped.
type Pool struct {
	numWorkers int
	tasks      chan Task
	wg         sync.WaitGroup
}

func NewPool(numWorkers, bufferSize int) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, bufferSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(ctx)
		}
	}
}

// Submit enqueues a task, reporting whether it was accepted.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		slog.Debug("task pool full, dropping task")
		return false
	}
}

func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}
