package core

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/docqa/internal/models"
)

var (
	ErrDuplicateSubmission = errors.New("source already submitted")
	ErrFetch               = errors.New("fetch failed")
	ErrExtraction          = errors.New("text extraction failed")
	ErrEmptyContent        = errors.New("no text content extracted")
	ErrUnsupportedContent  = errors.New("unsupported content type")
	ErrStorage             = errors.New("knowledge store write failed")
	ErrGeneration          = errors.New("answer generation failed")
	ErrEmptyQuery          = errors.New("query is empty")
	ErrJobNotFound         = errors.New("job not found")
	ErrNotRetryable        = errors.New("job is not in a retryable state")
	ErrDispatch            = errors.New("task dispatch failed")
)

// DuplicateSubmissionError is returned when a source key already has a job.
// It carries the existing job so callers can report it.
type DuplicateSubmissionError struct {
	SourceKey string
	JobID     string
	Status    models.JobStatus
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("source %q already submitted: job %s is %s", e.SourceKey, e.JobID, e.Status)
}

func (e *DuplicateSubmissionError) Is(target error) bool {
	return target == ErrDuplicateSubmission
}

// FetchError describes a failed retrieval of a remote source.
// StatusCode is zero when the request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
