package rag

import "time"

// ErrorKind classifies why a batch failed.
type ErrorKind string

const (
	KindPrecondition ErrorKind = "precondition"
	KindService      ErrorKind = "service"
	KindCanceled     ErrorKind = "canceled"
	KindUnknown      ErrorKind = "unknown"
)

// BatchOutcome is the result of writing one batch to the index.
type BatchOutcome struct {
	BatchIndex int       `json:"batch_index"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Error      ErrorKind `json:"error,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// RunSummary aggregates one ingestion run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Attempted  int            `json:"attempted"`
	Succeeded  int            `json:"succeeded"`
	Batches    []BatchOutcome `json:"batches"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Failed reports whether any batch recorded an error.
func (s RunSummary) Failed() bool {
	for _, b := range s.Batches {
		if b.Error != "" {
			return true
		}
	}
	return false
}
