package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

type JobHandler struct {
	ingestor Ingestor
	log      *zap.Logger
}

func NewJobHandler(ing Ingestor, log *zap.Logger) *JobHandler {
	return &JobHandler{ingestor: ing, log: log}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ingestor.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.jobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs serves GET /jobs?status=&limit=.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := models.JobStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := h.ingestor.ListJobs(r.Context(), status, limit)
	if err != nil {
		h.log.Error("list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.IngestionJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ingestor.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, core.ErrDispatch) && job != nil {
			writeJSON(w, http.StatusAccepted, ingestResponse{JobID: job.ID, Status: job.Status, Warning: dispatchWarning})
			return
		}
		h.jobError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{JobID: job.ID, Status: job.Status, Message: "Job has been queued for retry."})
}

func (h *JobHandler) jobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, core.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("job request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
