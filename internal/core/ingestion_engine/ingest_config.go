package ingestion_engine

import "time"

// IngestConfig tunes the ingestion pipeline.
//
// ChunkSize:      maximum runes per chunk (e.g., 1000).
// ChunkOverlap:   runes shared by consecutive chunks (e.g., 200).
// FetchTimeout:   timeout for a single web fetch.
// UploadBucket:   object storage bucket that holds uploaded files.
// ExecuteTimeout: upper bound for one Execute run.
type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	FetchTimeout   time.Duration
	UploadBucket   string
	ExecuteTimeout time.Duration
}

// DefaultIngestConfig matches the defaults of the environment config.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		FetchTimeout:   30 * time.Second,
		ExecuteTimeout: 5 * time.Minute,
	}
}
