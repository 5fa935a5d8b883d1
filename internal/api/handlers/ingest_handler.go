package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/models"
)

const (
	maxUploadBytes  = 50 << 20
	uploadTimeout   = 5 * time.Minute
	dispatchWarning = "Job recorded but could not be queued yet; it will be dispatched automatically."
)

type IngestHandler struct {
	ingestor Ingestor
	obj      core.ObjectClient
	bucket   string
	log      *zap.Logger
}

func NewIngestHandler(ing Ingestor, obj core.ObjectClient, bucket string, log *zap.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ing, obj: obj, bucket: bucket, log: log}
}

type ingestURLRequest struct {
	URL string `json:"url"`
}

type ingestResponse struct {
	JobID   string           `json:"job_id"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

// IngestURL accepts a web page for ingestion.
func (h *IngestHandler) IngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := ingestion_engine.CanonicalURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.ingestor.Submit(r.Context(), ingestion_engine.SubmitRequest{
		SourceKey: key,
		Kind:      models.SourceWeb,
		SourceRef: key,
	})
	h.respondSubmit(w, "URL", job, err, "")
}

// IngestFile accepts a PDF or DOCX upload, stores it in the bucket and
// submits it for ingestion.
func (h *IngestHandler) IngestFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File exceeds the 50 MiB limit.")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "File exceeds the 50 MiB limit.")
		return
	}

	kind, mime, ok := uploadKind(header.Filename, header.Header.Get("Content-Type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Only PDF and DOCX files are supported.")
		return
	}

	key, err := ingestion_engine.FileSourceKey(header.Filename, file)
	if err != nil {
		h.log.Error("hash upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read upload")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.log.Error("rewind upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read upload")
		return
	}

	// Identical bytes map to the same object key, so a duplicate upload only
	// rewrites the same object.
	objectKey := ingestion_engine.UploadObjectKey(key)
	uploadCtx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()
	if _, err := h.obj.UploadFile(uploadCtx, h.bucket, objectKey, file, mime); err != nil {
		h.log.Error("upload failed", zap.String("object_key", objectKey), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	job, err := h.ingestor.Submit(r.Context(), ingestion_engine.SubmitRequest{
		SourceKey:   key,
		Kind:        kind,
		SourceRef:   objectKey,
		ContentType: mime,
	})
	h.respondSubmit(w, "File", job, err, "File has been accepted and is pending processing.")
}

func (h *IngestHandler) respondSubmit(w http.ResponseWriter, what string, job *models.IngestionJob, err error, message string) {
	var dup *core.DuplicateSubmissionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ingestResponse{JobID: job.ID, Status: job.Status, Message: message})
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  fmt.Sprintf("%s has already been submitted. Job ID: %s, Status: %s", what, dup.JobID, dup.Status),
			"job_id": dup.JobID,
			"status": string(dup.Status),
		})
	case errors.Is(err, core.ErrDispatch) && job != nil:
		writeJSON(w, http.StatusAccepted, ingestResponse{JobID: job.ID, Status: job.Status, Message: message, Warning: dispatchWarning})
	default:
		h.log.Error("submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit job")
	}
}

// uploadKind accepts PDF and DOCX by declared content type, then by extension.
func uploadKind(filename, contentType string) (models.SourceKind, string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case models.MimePDF:
		return models.SourcePDF, models.MimePDF, true
	case models.MimeDocx:
		return models.SourceDocx, models.MimeDocx, true
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return models.SourcePDF, models.MimePDF, true
	case ".docx":
		return models.SourceDocx, models.MimeDocx, true
	}
	return "", "", false
}
