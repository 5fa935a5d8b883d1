package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

const memoryQueueSize = 64

// MemoryDispatcher runs tasks on in-process worker goroutines fed by a
// bounded queue. Queued tasks are lost if the process exits; the stale
// sweep re-dispatches their PENDING jobs on the next start.
type MemoryDispatcher struct {
	queue   chan models.Task
	workers int
	policy  RetryPolicy
	log     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ core.TaskDispatcher = (*MemoryDispatcher)(nil)

// NewMemoryDispatcher constructs the dispatcher with a bounded queue (64).
func NewMemoryDispatcher(workers int, policy RetryPolicy, log *zap.Logger) *MemoryDispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &MemoryDispatcher{
		queue:   make(chan models.Task, memoryQueueSize),
		workers: workers,
		policy:  policy,
		log:     log,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled or
// Stop is called.
func (d *MemoryDispatcher) Start(ctx context.Context, h core.TaskHandler) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-d.queue:
					if err := deliver(ctx, h, task, d.policy, d.log); err != nil {
						d.log.Error("task abandoned",
							zap.Int("worker", worker),
							zap.String("job_id", task.JobID),
							zap.Error(err),
						)
					}
				}
			}
		}(i)
	}
	d.log.Info("memory dispatcher started", zap.Int("workers", d.workers))
}

// Enqueue schedules a task. If the queue is full it blocks until space frees
// up or ctx ends.
func (d *MemoryDispatcher) Enqueue(ctx context.Context, task models.Task) error {
	select {
	case d.queue <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue job %s: %w", task.JobID, ctx.Err())
	}
}

// Stop cancels the workers and waits for in-flight tasks to return.
func (d *MemoryDispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}
