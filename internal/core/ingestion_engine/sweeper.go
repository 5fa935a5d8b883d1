package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

const sweepBatch = 100

// Sweeper re-dispatches jobs that stayed PENDING too long, which happens when
// a dispatch failed after the job row was committed. Jobs stuck in
// PROCESSING are only reported.
type Sweeper struct {
	jobs       core.JobStore
	dispatch   core.TaskDispatcher
	staleAfter time.Duration
	interval   time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewSweeper(jobs core.JobStore, dispatch core.TaskDispatcher, staleAfter, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		jobs:       jobs,
		dispatch:   dispatch,
		staleAfter: staleAfter,
		interval:   interval,
		log:        log,
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is done. A zero interval or threshold
// disables sweeping.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 || s.staleAfter <= 0 {
		s.log.Info("stale job sweep disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("stale job sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce re-dispatches stale PENDING jobs and returns how many were sent.
// Each job is touched (PENDING → PENDING) before dispatch so the next sweep
// waits a full threshold before sending it again.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)

	stale, err := s.jobs.ListStale(ctx, models.StatusPending, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale pending jobs: %w", err)
	}

	var (
		sent int
		errs []error
	)
	for i := range stale {
		job := &stale[i]
		touched, err := s.jobs.TransitionJob(ctx, job.ID,
			[]models.JobStatus{models.StatusPending}, models.StatusPending, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("touch job %s: %w", job.ID, err))
			continue
		}
		if !touched {
			continue
		}
		if err := s.dispatch.Enqueue(ctx, models.NewTask(job)); err != nil {
			errs = append(errs, fmt.Errorf("%w: job %s: %w", core.ErrDispatch, job.ID, err))
			continue
		}
		sent++
		s.log.Info("stale pending job re-dispatched",
			zap.String("job_id", job.ID), zap.Time("last_update", job.UpdatedAt))
	}

	stuck, err := s.jobs.ListStale(ctx, models.StatusProcessing, cutoff, sweepBatch)
	if err != nil {
		errs = append(errs, fmt.Errorf("list stuck processing jobs: %w", err))
	}
	for _, job := range stuck {
		s.log.Warn("job stuck in PROCESSING",
			zap.String("job_id", job.ID), zap.Time("last_update", job.UpdatedAt))
	}

	return sent, errors.Join(errs...)
}
