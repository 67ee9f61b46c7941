// Package failure defines the error kinds reported by ingestion and retrieval.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell "no documents" from "load failed"
// from "embedding service unavailable" without parsing messages.
type Kind string

const (
	None                 Kind = ""
	ExtractionFailure    Kind = "extraction_failure"
	OCRFailure           Kind = "ocr_failure"
	ChunkingFailure      Kind = "chunking_failure"
	IndexLoadFailure     Kind = "index_load_failure"
	IndexWriteFailure    Kind = "index_write_failure"
	DeletionFailure      Kind = "deletion_failure"
	EmbeddingUnavailable Kind = "embedding_unavailable"
	NoDocuments          Kind = "no_documents"
	InvalidInput         Kind = "invalid_input"
	Internal             Kind = "internal"
)

// String returns the kind name, or "none".
func (k Kind) String() string {
	if k == None {
		return "none"
	}
	return string(k)
}

// Error is the structured error returned by the indexer and retrieval packages.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "save_or_update"
	Project string
	Err     error
	// Retryable is set when repeating the call may succeed, e.g. after a timeout.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Project != "" {
		msg += " (project " + e.Project + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: NoDocuments}) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error. Timeouts and cancellations of the cause mark it retryable.
func New(kind Kind, op, project string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Project:   project,
		Err:       err,
		Retryable: isTransient(err),
	}
}

// KindOf returns the kind of the first *Error in err's chain, None for nil,
// and Internal for errors that carry no kind.
func KindOf(err error) Kind {
	if err == nil {
		return None
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
