package models

import (
	"time"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// SourceKind selects the extraction strategy for a job.
type SourceKind string

const (
	SourceWeb  SourceKind = "web"
	SourcePDF  SourceKind = "pdf"
	SourceDocx SourceKind = "docx"
)

const (
	MimePDF  = "application/pdf"
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// SourceRef carries everything a worker needs to re-read the raw content of a job.
type SourceRef struct {
	Kind        SourceKind `json:"kind"`
	URL         string     `json:"url,omitempty"`          // web pages
	ObjectKey   string     `json:"object_key,omitempty"`   // uploaded files in the object store
	ContentType string     `json:"content_type,omitempty"` // MIME type of uploads
}

// Location returns the URL or the object key, whichever the kind uses.
func (r SourceRef) Location() string {
	if r.Kind == SourceWeb {
		return r.URL
	}
	return r.ObjectKey
}

// IngestionJob is the durable record of one submitted source.
type IngestionJob struct {
	ID          string     `db:"id" json:"id"`
	SourceKey   string     `db:"source_key" json:"source_key"`
	Status      JobStatus  `db:"status" json:"status"`
	SourceKind  SourceKind `db:"source_kind" json:"source_kind"`
	SourceRef   string     `db:"source_ref" json:"source_ref"`
	ContentType string     `db:"content_type" json:"content_type,omitempty"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Ref rebuilds the source reference stored on the job row.
func (j *IngestionJob) Ref() SourceRef {
	ref := SourceRef{Kind: j.SourceKind, ContentType: j.ContentType}
	if j.SourceKind == SourceWeb {
		ref.URL = j.SourceRef
	} else {
		ref.ObjectKey = j.SourceRef
	}
	return ref
}

// Chunk is one stored text segment of a source.
type Chunk struct {
	ID       string            `json:"id"` // "{source_key}_{index}"
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// RetrievedChunk is a ranked hit returned by the knowledge store.
type RetrievedChunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// SourceKey returns the originating source key of the hit.
func (c RetrievedChunk) SourceKey() string {
	return c.Metadata[MetaSourceKey]
}

// Metadata keys attached to every stored chunk.
const (
	MetaSourceKey  = "source_key"
	MetaChunkIndex = "chunk_index"
)

// QueryResult is the outcome of one grounded query. It is never persisted.
type QueryResult struct {
	RewrittenQuery  string           `json:"rewritten_query"`
	RewriteFellBack bool             `json:"rewrite_fell_back"`
	Retrieved       []RetrievedChunk `json:"retrieved"`
	Answer          string           `json:"answer"`
	Sources         []string         `json:"sources"`
}
