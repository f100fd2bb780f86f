// Package models defines the client-side entities, wire shapes and error taxonomy
// shared by the transport, store and orchestrators.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus is the ingestion status of a document or upload task.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether no further status transition is expected.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the forward-only lifecycle. Terminal statuses share a rank.
func (s DocumentStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next respects the forward-only lifecycle.
// Reindex is the only way back to pending and does not go through this check.
func (s DocumentStatus) CanAdvanceTo(next DocumentStatus) bool {
	if next.Rank() < 0 {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.Rank() >= s.Rank()
}

// Document represents an uploaded document as listed by the backend.
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	FileType     string         `json:"file_type"`
	Size         int64          `json:"file_size"`
	UploadedAt   time.Time      `json:"upload_date"`
	Status       DocumentStatus `json:"processing_status"`
	ChunkCount   int            `json:"chunk_count,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// FileType returns the lower-case extension of name without the leading dot.
func FileType(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
