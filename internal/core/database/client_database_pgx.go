package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.JobStore = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

// NewDatabaseClient opens the pool, pings it and applies the bootstrap schema.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// NewFromDB wraps an already opened pool. The schema must exist.
func NewFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

// buildDSN appends certificate verification parameters when a CA bundle is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DB exposes the pool so the pgvector knowledge store can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const jobColumns = `id::text, source_key, status, source_kind, source_ref, content_type, last_error, created_at, updated_at`

// CreateJob inserts the job as PENDING. The unique index on source_key makes
// the duplicate check and the insert a single atomic statement.
func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO ingestion_jobs
			(id, source_key, status, source_kind, source_ref, content_type, created_at, updated_at)
		VALUES
			($1, $2, 'PENDING', $3, $4, $5, now(), now())
		ON CONFLICT (source_key) DO NOTHING
		RETURNING status, created_at, updated_at
	`
	var status string
	err := c.db.QueryRowContext(ctx, q,
		job.ID, job.SourceKey, string(job.SourceKind), job.SourceRef, job.ContentType,
	).Scan(&status, &job.CreatedAt, &job.UpdatedAt)
	if err == nil {
		job.Status = models.JobStatus(status)
		job.LastError = ""
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("insert job: %w", err)
	}

	existing, err := c.GetJobBySourceKey(ctx, job.SourceKey)
	if err != nil {
		return fmt.Errorf("load existing job: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("insert job: conflict on %q but no row found", job.SourceKey)
	}
	return &core.DuplicateSubmissionError{SourceKey: job.SourceKey, JobID: existing.ID, Status: existing.Status}
}

// GetJob returns nil, nil for unknown or malformed ids.
func (c *DatabaseClient) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = $1`
	return c.getOne(ctx, q, id)
}

func (c *DatabaseClient) GetJobBySourceKey(ctx context.Context, sourceKey string) (*models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE source_key = $1`
	return c.getOne(ctx, q, sourceKey)
}

func (c *DatabaseClient) getOne(ctx context.Context, q string, arg any) (*models.IngestionJob, error) {
	job, err := scanJob(c.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the newest jobs first. An empty status lists every job.
func (c *DatabaseClient) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]models.IngestionJob, error) {
	q := `
		SELECT ` + jobColumns + `
		FROM ingestion_jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	return c.list(ctx, q, string(status), limit)
}

func (c *DatabaseClient) ListStale(ctx context.Context, status models.JobStatus, olderThan time.Time, limit int) ([]models.IngestionJob, error) {
	q := `
		SELECT ` + jobColumns + `
		FROM ingestion_jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	return c.list(ctx, q, string(status), olderThan, limit)
}

func (c *DatabaseClient) list(ctx context.Context, q string, args ...any) ([]models.IngestionJob, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IngestionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// TransitionJob is a compare-and-set on status. lastError replaces the stored
// failure reason; an empty value clears it.
func (c *DatabaseClient) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, lastError string) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("invalid target status %q", to)
	}
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	const q = `
		UPDATE ingestion_jobs
		SET status = $2, last_error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = ANY($4::text[])
	`
	res, err := c.db.ExecContext(ctx, q, id, string(to), lastError, allowed)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.IngestionJob, error) {
	var (
		j         models.IngestionJob
		status    string
		kind      string
		lastError sql.NullString
	)
	if err := row.Scan(
		&j.ID, &j.SourceKey, &status, &kind, &j.SourceRef, &j.ContentType, &lastError, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.SourceKind = models.SourceKind(kind)
	j.LastError = lastError.String
	return &j, nil
}
