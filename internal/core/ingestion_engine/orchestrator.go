// Package ingestion_engine turns submitted sources into stored knowledge:
// job bookkeeping, text extraction, chunking and the hand-off to the store.
package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.TaskHandler = (*Orchestrator)(nil)

const (
	maxLastErrorBytes  = 1024
	statusWriteTimeout = 10 * time.Second
	defaultListLimit   = 50
	maxListLimit       = 500
)

// SubmitRequest describes a new source. SourceRef is the URL for web pages
// and the object key for uploads.
type SubmitRequest struct {
	SourceKey   string
	Kind        models.SourceKind
	SourceRef   string
	ContentType string
}

// Orchestrator owns the job lifecycle: submit, execute, retry.
//
// jobs:      durable job records with status-guarded transitions.
// extractor: raw source → normalized text.
// chunker:   text → overlapping chunks.
// store:     chunk persistence (embedding happens inside).
// dispatch:  hands tasks to workers; nil in processes that only execute.
type Orchestrator struct {
	jobs      core.JobStore
	extractor core.TextExtractor
	chunker   core.TextChunker
	store     core.KnowledgeStore
	dispatch  core.TaskDispatcher
	cfg       IngestConfig
	log       *zap.Logger
}

func NewOrchestrator(
	jobs core.JobStore,
	extractor core.TextExtractor,
	chunker core.TextChunker,
	store core.KnowledgeStore,
	dispatch core.TaskDispatcher,
	cfg IngestConfig,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		extractor: extractor,
		chunker:   chunker,
		store:     store,
		dispatch:  dispatch,
		cfg:       cfg,
		log:       log,
	}
}

// Submit records a PENDING job and dispatches its task. A source key that
// already has a job yields *core.DuplicateSubmissionError and nothing else.
// If the dispatch fails the committed job is still returned, together with
// an error wrapping core.ErrDispatch.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*models.IngestionJob, error) {
	if strings.TrimSpace(req.SourceKey) == "" {
		return nil, errors.New("submit: empty source key")
	}

	job := &models.IngestionJob{
		ID:          uuid.NewString(),
		SourceKey:   req.SourceKey,
		Status:      models.StatusPending,
		SourceKind:  req.Kind,
		SourceRef:   req.SourceRef,
		ContentType: req.ContentType,
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, core.ErrDuplicateSubmission) {
			o.log.Info("duplicate submission rejected", zap.String("source_key", req.SourceKey))
			return nil, err
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.log.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("source_key", job.SourceKey),
		zap.String("kind", string(job.SourceKind)),
	)

	if err := o.enqueue(ctx, job); err != nil {
		o.log.Error("dispatch failed, job left pending for the sweeper",
			zap.String("job_id", job.ID), zap.Error(err))
		return job, err
	}
	return job, nil
}

func (o *Orchestrator) enqueue(ctx context.Context, job *models.IngestionJob) error {
	if o.dispatch == nil {
		return fmt.Errorf("%w: no dispatcher configured", core.ErrDispatch)
	}
	if err := o.dispatch.Enqueue(ctx, models.NewTask(job)); err != nil {
		return fmt.Errorf("%w: job %s: %w", core.ErrDispatch, job.ID, err)
	}
	return nil
}

// HandleTask is the worker entry point.
func (o *Orchestrator) HandleTask(ctx context.Context, task models.Task) error {
	switch task.Name {
	case models.TaskProcessURL, models.TaskProcessFile:
	default:
		o.log.Error("unknown task dropped", zap.String("task", task.Name), zap.String("job_id", task.JobID))
		return nil
	}
	if task.Source.Kind != "" && models.TaskNameFor(task.Source.Kind) != task.Name {
		o.log.Error("task name does not match source kind, dropped",
			zap.String("task", task.Name),
			zap.String("kind", string(task.Source.Kind)),
			zap.String("job_id", task.JobID),
		)
		return nil
	}
	return o.Execute(ctx, task.JobID, task.Source)
}

// Execute runs one job through extract → chunk → store. It is safe to call
// more than once for the same job: only the caller that wins the
// {PENDING, FAILED} → PROCESSING claim does any work.
func (o *Orchestrator) Execute(ctx context.Context, jobID string, ref models.SourceRef) error {
	log := o.log.With(zap.String("job_id", jobID))

	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		log.Warn("job not found, task ignored")
		return nil
	}

	claimed, err := o.jobs.TransitionJob(ctx, jobID,
		[]models.JobStatus{models.StatusPending, models.StatusFailed}, models.StatusProcessing, "")
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		log.Info("duplicate delivery skipped", zap.String("status", string(job.Status)))
		return nil
	}

	if ref.Location() == "" {
		ref = job.Ref()
	}
	log.Info("processing job", zap.String("source_key", job.SourceKey))

	runCtx := ctx
	if o.cfg.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.ExecuteTimeout)
		defer cancel()
	}

	n, err := o.process(runCtx, job.SourceKey, ref)
	if err != nil {
		return o.markFailed(ctx, job, err)
	}

	done, err := o.jobs.TransitionJob(ctx, jobID,
		[]models.JobStatus{models.StatusProcessing}, models.StatusCompleted, "")
	if err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}
	if !done {
		log.Warn("job left PROCESSING by another writer before completion")
		return nil
	}
	log.Info("job completed", zap.Int("chunks", n))
	return nil
}

// process returns the number of chunks stored.
func (o *Orchestrator) process(ctx context.Context, sourceKey string, ref models.SourceRef) (int, error) {
	text, err := o.extractor.Extract(ctx, ref)
	if err != nil {
		if errors.Is(err, core.ErrFetch) || errors.Is(err, core.ErrExtraction) || errors.Is(err, core.ErrUnsupportedContent) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", core.ErrExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: %s", core.ErrEmptyContent, sourceKey)
	}

	chunks, err := o.chunker.Chunk(text)
	if err != nil {
		return 0, fmt.Errorf("%w: chunk: %w", core.ErrExtraction, err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrEmptyContent, sourceKey)
	}

	if err := o.store.Add(ctx, sourceKey, chunks); err != nil {
		if errors.Is(err, core.ErrStorage) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return len(chunks), nil
}

// markFailed records cause on the job and returns it. The status write runs
// on a fresh deadline so a cancelled run can still be recorded.
func (o *Orchestrator) markFailed(ctx context.Context, job *models.IngestionJob, cause error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	cause = fmt.Errorf("job %s: %w", job.ID, cause)
	_, err := o.jobs.TransitionJob(wctx, job.ID,
		[]models.JobStatus{models.StatusProcessing}, models.StatusFailed, truncateError(cause.Error()))
	if err != nil {
		o.log.Error("could not record job failure",
			zap.String("job_id", job.ID), zap.NamedError("cause", cause), zap.Error(err))
		return errors.Join(cause, fmt.Errorf("mark job %s failed: %w", job.ID, err))
	}
	o.log.Warn("job failed", zap.String("job_id", job.ID), zap.Error(cause))
	return cause
}

// truncateError cuts msg to maxLastErrorBytes without splitting a rune.
func truncateError(msg string) string {
	if len(msg) <= maxLastErrorBytes {
		return msg
	}
	cut := maxLastErrorBytes
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// Retry re-dispatches a FAILED job. The job stays FAILED until a worker claims it.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	job, err := o.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusFailed {
		return job, fmt.Errorf("%w: job %s is %s", core.ErrNotRetryable, job.ID, job.Status)
	}
	if err := o.enqueue(ctx, job); err != nil {
		return job, err
	}
	o.log.Info("job retry dispatched", zap.String("job_id", job.ID))
	return job, nil
}

// GetJob returns core.ErrJobNotFound for unknown ids.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	return job, nil
}

// ListJobs lists recent jobs, optionally filtered by status ("" for all).
func (o *Orchestrator) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]models.IngestionJob, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return o.jobs.ListJobs(ctx, status, limit)
}
