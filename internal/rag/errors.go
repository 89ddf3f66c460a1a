package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConfig        = errors.New("invalid configuration")
	ErrSplit         = errors.New("split failed")
	ErrParse         = errors.New("parse failed")
	ErrService       = errors.New("service error")
	ErrPrecondition  = errors.New("precondition failed")
	ErrIndexNotReady = errors.New("index not ready")
)

// ConfigError reports missing or inconsistent configuration.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		return ErrConfig.Error()
	}
	return "config: " + strings.Join(parts, "; ")
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// ParseError is a per-file loading failure.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// SplitError aborts a whole split call.
type SplitError struct {
	DocID string
	Err   error
}

func (e *SplitError) Error() string {
	if e.DocID == "" {
		return fmt.Sprintf("split: %v", e.Err)
	}
	return fmt.Sprintf("split document %s: %v", e.DocID, e.Err)
}

func (e *SplitError) Unwrap() []error { return []error{ErrSplit, e.Err} }

// ServiceError is a failure reported by a remote service.
type ServiceError struct {
	Op   string
	Code int
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: service error (HTTP %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: service error: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() []error { return []error{ErrService, e.Err} }

// PreconditionError means the remote index is not in a state that accepts the
// operation, typically because it is still being created or deployed.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() []error { return []error{ErrPrecondition, e.Err} }

// IngestError is returned when an ingestion run stops early. Summary holds the
// counts reached before the failure.
type IngestError struct {
	Summary RunSummary
	Err     error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest stopped after %d of %d chunks: %v",
		e.Summary.Succeeded, e.Summary.Attempted, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// KindOf classifies err for reporting in a BatchOutcome.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrService):
		return KindService
	default:
		return KindUnknown
	}
}
