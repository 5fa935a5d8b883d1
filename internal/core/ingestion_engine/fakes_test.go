package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// memJobStore is an in-memory core.JobStore with the same guarded semantics
// as the Postgres implementation.
type memJobStore struct {
	mu    sync.Mutex
	byID  map[string]*models.IngestionJob
	byKey map[string]string
	now   func() time.Time
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		byID:  map[string]*models.IngestionJob{},
		byKey: map[string]string{},
		now:   time.Now,
	}
}

func (s *memJobStore) CreateJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[job.SourceKey]; ok {
		existing := s.byID[id]
		return &core.DuplicateSubmissionError{SourceKey: job.SourceKey, JobID: existing.ID, Status: existing.Status}
	}
	now := s.now()
	job.Status = models.StatusPending
	job.CreatedAt, job.UpdatedAt = now, now
	cp := *job
	s.byID[job.ID] = &cp
	s.byKey[job.SourceKey] = job.ID
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id string) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memJobStore) GetJobBySourceKey(ctx context.Context, key string) (*models.IngestionJob, error) {
	s.mu.Lock()
	id, ok := s.byKey[key]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.GetJob(ctx, id)
}

func (s *memJobStore) ListJobs(_ context.Context, status models.JobStatus, limit int) ([]models.IngestionJob, error) {
	return s.filter(func(j *models.IngestionJob) bool { return status == "" || j.Status == status }, limit), nil
}

func (s *memJobStore) ListStale(_ context.Context, status models.JobStatus, olderThan time.Time, limit int) ([]models.IngestionJob, error) {
	return s.filter(func(j *models.IngestionJob) bool {
		return j.Status == status && j.UpdatedAt.Before(olderThan)
	}, limit), nil
}

func (s *memJobStore) filter(keep func(*models.IngestionJob) bool, limit int) []models.IngestionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.IngestionJob{}
	for _, j := range s.byID {
		if keep(j) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memJobStore) TransitionJob(_ context.Context, id string, from []models.JobStatus, to models.JobStatus, lastError string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok || !slices.Contains(from, j.Status) {
		return false, nil
	}
	j.Status = to
	j.LastError = lastError
	j.UpdatedAt = s.now()
	return true, nil
}

func (s *memJobStore) Close() error { return nil }

// setUpdatedAt backdates a job for sweep tests.
func (s *memJobStore) setUpdatedAt(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].UpdatedAt = t
}

// memKnowledge keeps chunks keyed by their deterministic id.
type memKnowledge struct {
	mu     sync.Mutex
	chunks map[string]string
	adds   int
	err    error
}

func newMemKnowledge() *memKnowledge {
	return &memKnowledge{chunks: map[string]string{}}
}

func (k *memKnowledge) Add(_ context.Context, sourceKey string, chunks []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.adds++
	for i, c := range chunks {
		k.chunks[chunkKey(sourceKey, i)] = c
	}
	return nil
}

func (k *memKnowledge) Query(context.Context, string, int) ([]models.RetrievedChunk, error) {
	return []models.RetrievedChunk{}, nil
}

func (k *memKnowledge) Close() error { return nil }

func (k *memKnowledge) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.chunks)
}

func chunkKey(sourceKey string, i int) string {
	return sourceKey + "_" + strconv.Itoa(i)
}

// recordingDispatcher stores tasks instead of running them.
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []models.Task
	err   error
}

func (d *recordingDispatcher) Enqueue(_ context.Context, t models.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, t)
	return nil
}

func (d *recordingDispatcher) sent() []models.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.tasks)
}

// staticExtractor returns fixed text or a fixed error.
type staticExtractor struct {
	text  string
	err   error
	calls int
}

func (e *staticExtractor) Extract(context.Context, models.SourceRef) (string, error) {
	e.calls++
	return e.text, e.err
}

var errBoom = errors.New("boom")

// memObjects is an in-memory core.ObjectClient keyed by bucket and key.
type memObjects struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{files: map[string][]byte{}}
}

func (m *memObjects) UploadFile(_ context.Context, bucket, key string, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[bucket+"/"+key] = data
	return key, nil
}

func (m *memObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return data, nil
}

func (m *memObjects) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, err := m.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, bucket+"/"+key)
	return nil
}

// failingTransitions fails every transition into one status.
type failingTransitions struct {
	*memJobStore
	to  models.JobStatus
	err error
}

func (s *failingTransitions) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, lastError string) (bool, error) {
	if to == s.to {
		return false, s.err
	}
	return s.memJobStore.TransitionJob(ctx, id, from, to, lastError)
}
