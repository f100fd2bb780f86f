package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// EnvelopeType discriminates push-channel frames.
type EnvelopeType string

const (
	EnvelopeDocumentProcessing EnvelopeType = "document_processing"
	EnvelopeSystemUpdate       EnvelopeType = "system_update"
)

// ConnectionStatus is the push channel state exposed to the UI.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
)

// Envelope is one parsed push-channel frame.
type Envelope struct {
	Type          EnvelopeType   `json:"type"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	TaskID        string         `json:"task_id,omitempty"`
	DocumentID    string         `json:"document_id,omitempty"`
	Status        DocumentStatus `json:"status,omitempty"`
	Progress      int            `json:"progress,omitempty"`
	Message       string         `json:"message,omitempty"`
	ErrorDetails  string         `json:"error_details,omitempty"`
	ChunkCount    int            `json:"chunk_count,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ErrMalformedEnvelope is returned for frames that are not JSON objects with a type.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// ParseEnvelope decodes a raw frame. Unknown types are accepted so that
// consumers can decide relevance; missing types are not.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if env.Progress < 0 || env.Progress > 100 {
		return Envelope{}, fmt.Errorf("%w: progress %d out of range", ErrMalformedEnvelope, env.Progress)
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return env, nil
}

// UnmarshalJSON accepts fractional progress, rounded to the nearest percent.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type plain Envelope
	aux := struct {
		*plain
		Progress float64 `json:"progress,omitempty"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p, err := roundProgress(aux.Progress)
	if err != nil {
		return err
	}
	e.Progress = p
	return nil
}

func roundProgress(p float64) (int, error) {
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("progress %g out of range", p)
	}
	return int(math.Round(p)), nil
}

// ProcessingUpdate returns the document_processing payload of the envelope.
func (e Envelope) ProcessingUpdate() ProcessingUpdate {
	return ProcessingUpdate{
		TaskID:       e.TaskID,
		DocumentID:   e.DocumentID,
		Status:       e.Status,
		Progress:     e.Progress,
		Message:      e.Message,
		ErrorDetails: e.ErrorDetails,
	}
}
