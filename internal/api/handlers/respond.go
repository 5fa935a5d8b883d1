package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/models"
)

// Ingestor is the slice of the orchestrator the HTTP layer uses.
type Ingestor interface {
	Submit(ctx context.Context, req ingestion_engine.SubmitRequest) (*models.IngestionJob, error)
	GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]models.IngestionJob, error)
	Retry(ctx context.Context, jobID string) (*models.IngestionJob, error)
}

// Answerer answers one grounded query.
type Answerer interface {
	Answer(ctx context.Context, query string) (*models.QueryResult, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
