package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusLoading   JobStatus = "loading"
	StatusSplitting JobStatus = "splitting"
	StatusIndexing  JobStatus = "indexing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
	StatusUnchanged JobStatus = "unchanged"
)

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusUnchanged:
		return true
	}
	return false
}

// IngestRequest describes what a job ingests. Zero values fall back to the
// worker's configured defaults.
type IngestRequest struct {
	SourceDir  string   `json:"source_dir"`
	Files      []string `json:"files,omitempty"` // explicit files under SourceDir; empty means discover
	Recursive  *bool    `json:"recursive,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
	BatchSize  int      `json:"batch_size,omitempty"`
	Force      bool     `json:"force,omitempty"` // re-index unchanged documents
}

// Job tracks the state of one ingestion run.
type Job struct {
	mu sync.Mutex

	ID      string
	Request IngestRequest

	Status JobStatus
	Phase  string

	Progress Progress
	Summary  *rag.RunSummary

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress tracks processing progress.
type Progress struct {
	FilesFound     int      `json:"files_found"`
	FilesLoaded    int      `json:"files_loaded"`
	FilesFailed    int      `json:"files_failed"`
	FilesUnchanged int      `json:"files_unchanged"`
	TotalChunks    int      `json:"total_chunks"`
	ChunksIndexed  int      `json:"chunks_indexed"`
	BatchesDone    int      `json:"batches_done"`
	BatchesTotal   int      `json:"batches_total"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job with a fresh ID.
func NewJob(req IngestRequest) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// List returns snapshots of all jobs, newest first.
func (s *JobStore) List() []JobSnapshot {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobSnapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Errors = append(j.Progress.Errors, err)
	j.UpdatedAt = time.Now()
}

// SetLoadCounts records file discovery results.
func (j *Job) SetLoadCounts(found, loaded, failed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FilesFound = found
	j.Progress.FilesLoaded = loaded
	j.Progress.FilesFailed = failed
	j.UpdatedAt = time.Now()
}

// SetUnchanged records how many documents were skipped as already indexed.
func (j *Job) SetUnchanged(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FilesUnchanged = n
	j.UpdatedAt = time.Now()
}

// SetChunkPlan records the chunk and batch totals.
func (j *Job) SetChunkPlan(chunks, batches int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = chunks
	j.Progress.BatchesTotal = batches
	j.UpdatedAt = time.Now()
}

// RecordBatch folds a batch outcome into the progress counters.
func (j *Job) RecordBatch(o rag.BatchOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.BatchesDone++
	j.Progress.ChunksIndexed += o.Succeeded
	j.UpdatedAt = time.Now()
}

// SetSummary stores the run summary.
func (j *Job) SetSummary(sum rag.RunSummary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Summary = &sum
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string          `json:"job_id"`
	Request   IngestRequest   `json:"request"`
	Status    JobStatus       `json:"status"`
	Phase     string          `json:"phase"`
	Progress  Progress        `json:"progress"`
	Summary   *rag.RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.Progress
	p.Errors = append([]string{}, j.Progress.Errors...)
	var sum *rag.RunSummary
	if j.Summary != nil {
		s := *j.Summary
		s.Batches = append([]rag.BatchOutcome{}, j.Summary.Batches...)
		sum = &s
	}
	return JobSnapshot{
		ID:        j.ID,
		Request:   j.Request,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		Summary:   sum,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
