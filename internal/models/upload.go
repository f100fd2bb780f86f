package models

import "time"

// UploadProgress tracks one file submission from selection to ingestion end.
// It is keyed by task id, which may differ from the eventual document id.
type UploadProgress struct {
	TaskID       string         `json:"task_id"`
	DocumentID   string         `json:"document_id,omitempty"`
	Filename     string         `json:"filename"`
	Status       DocumentStatus `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ProcessingUpdate is a status observation for an upload task, from either
// the push channel or a status poll.
type ProcessingUpdate struct {
	TaskID       string         `json:"task_id,omitempty"`
	DocumentID   string         `json:"document_id,omitempty"`
	Status       DocumentStatus `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
}
