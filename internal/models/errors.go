package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrStaleResponse is returned by the store when a response targets a
// conversation that is no longer loaded. It is never shown to the user.
var ErrStaleResponse = errors.New("stale response")

// TransportError is a network or HTTP failure of a request/response call.
// It is retryable by user action only.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same request may succeed.
func (e *TransportError) Retryable() bool {
	return e.Status == 0 || e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// ValidationError rejects a file before any network call.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

// ProcessingError is a terminal ingestion failure reported by the server.
type ProcessingError struct {
	Filename   string
	DocumentID string
	Detail     string
}

func (e *ProcessingError) Error() string {
	name := e.Filename
	if name == "" {
		name = e.DocumentID
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: processing failed", name)
	}
	return fmt.Sprintf("%s: processing failed: %s", name, e.Detail)
}
