package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/docqa/internal/models"
)

// JobStore is the durable record of ingestion jobs.
// Every status write is a single conditional update so concurrent writers of
// the same job cannot interleave a read-modify-write.
type JobStore interface {
	// CreateJob inserts job as PENDING. If the source key is taken it returns a
	// *DuplicateSubmissionError describing the existing job.
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	// GetJob returns nil, nil when the id is unknown.
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
	GetJobBySourceKey(ctx context.Context, sourceKey string) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]models.IngestionJob, error)
	// ListStale returns jobs in status whose last write is older than olderThan.
	ListStale(ctx context.Context, status models.JobStatus, olderThan time.Time, limit int) ([]models.IngestionJob, error)
	// TransitionJob moves the job to `to` only if its current status is one of
	// `from`. It reports whether the row changed.
	TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, lastError string) (bool, error)
	Close() error
}

// KnowledgeStore holds chunk texts and answers nearest-neighbour queries.
// Embedding happens inside the implementation.
type KnowledgeStore interface {
	// Add upserts chunks under ids "{sourceKey}_{i}" with {source_key} metadata.
	Add(ctx context.Context, sourceKey string, chunks []string) error
	// Query returns at most k hits ranked best first. An empty store yields an
	// empty slice, not an error.
	Query(ctx context.Context, text string, k int) ([]models.RetrievedChunk, error)
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// TaskDispatcher hands ingestion work to workers with at-least-once delivery.
type TaskDispatcher interface {
	Enqueue(ctx context.Context, task models.Task) error
}

// TaskHandler executes one delivered task.
type TaskHandler interface {
	HandleTask(ctx context.Context, task models.Task) error
}
