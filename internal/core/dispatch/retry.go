package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// RetryPolicy bounds how often one delivered task is handed to the handler.
// Attempt n waits n*Backoff before running again.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// deliver runs the handler until it succeeds, attempts run out or ctx ends.
// It returns the last handler error.
func deliver(ctx context.Context, h core.TaskHandler, task models.Task, policy RetryPolicy, log *zap.Logger) error {
	var err error
	limit := policy.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		if err = h.HandleTask(ctx, task); err == nil {
			return nil
		}
		log.Warn("task attempt failed",
			zap.String("task", task.Name),
			zap.String("job_id", task.JobID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", limit),
			zap.Error(err),
		)
		if attempt == limit {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * policy.Backoff):
		}
	}
	return err
}
