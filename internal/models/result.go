package models

import (
	"encoding/json"
	"time"
)

// HealthResponse is the response of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// UploadedFile describes one accepted file in an upload response.
type UploadedFile struct {
	Filename   string         `json:"filename"`
	DocumentID string         `json:"document_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Status     DocumentStatus `json:"status,omitempty"`
}

// FailedUpload describes one rejected file in an upload response.
type FailedUpload struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResponse is the response of POST /api/v1/documents/upload.
type UploadResponse struct {
	UploadedFiles []UploadedFile `json:"uploaded_files"`
	FailedUploads []FailedUpload `json:"failed_uploads"`
	TotalUploaded int            `json:"total_uploaded"`
}

// Pagination is the paging block of list responses.
type Pagination struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
	Page  int `json:"page,omitempty"`
}

// DocumentList is the response of GET /api/v1/database/documents.
type DocumentList struct {
	Documents  []Document `json:"documents"`
	Pagination Pagination `json:"pagination"`
}

// StatusResponse is the generic {status} body of delete endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ReindexResponse is the response of the reindex endpoint.
type ReindexResponse struct {
	DocumentID string         `json:"document_id"`
	TaskID     string         `json:"task_id,omitempty"`
	Status     DocumentStatus `json:"status"`
}

// TaskStatus is the response of the status-by-task endpoint.
type TaskStatus struct {
	TaskID       string         `json:"task_id"`
	DocumentID   string         `json:"document_id,omitempty"`
	Status       DocumentStatus `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
}

// UnmarshalJSON accepts fractional progress, rounded to the nearest percent.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	type plain TaskStatus
	aux := struct {
		*plain
		Progress float64 `json:"progress"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p, err := roundProgress(aux.Progress)
	if err != nil {
		return err
	}
	s.Progress = p
	return nil
}

// Update converts the poll result to the shared update shape.
func (s TaskStatus) Update() ProcessingUpdate {
	return ProcessingUpdate{
		TaskID:       s.TaskID,
		DocumentID:   s.DocumentID,
		Status:       s.Status,
		Progress:     s.Progress,
		Message:      s.Message,
		ErrorDetails: s.ErrorDetails,
	}
}

// ChatRequest is the body of POST /api/v1/chat/message.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatReply is the assistant message block of a chat response.
type ChatReply struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []Source  `json:"sources"`
}

// ChatResponse is the response of POST /api/v1/chat/message.
type ChatResponse struct {
	Message      ChatReply    `json:"message"`
	Conversation Conversation `json:"conversation"`
}

// AssistantMessage converts the reply block to a transcript message.
func (r ChatResponse) AssistantMessage() Message {
	return Message{
		ID:        r.Message.ID,
		Role:      RoleAssistant,
		Content:   r.Message.Content,
		CreatedAt: r.Message.CreatedAt,
		Sources:   r.Message.Sources,
		State:     MessageSent,
	}
}

// ConversationList is the response of GET /api/v1/chat/conversations.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

// ConversationHistory is the response of GET /api/v1/chat/conversations/{id}.
type ConversationHistory struct {
	Conversation *Conversation `json:"conversation,omitempty"`
	Messages     []Message     `json:"messages"`
}
