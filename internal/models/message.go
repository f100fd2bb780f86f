package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageState tracks the delivery state of a message on the client.
type MessageState string

const (
	MessageSending MessageState = "sending"
	MessageSent    MessageState = "sent"
	MessageFailed  MessageState = "failed"
)

// Source is a citation attached to an assistant message.
type Source struct {
	Filename string  `json:"filename"`
	Excerpt  string  `json:"excerpt"`
	Score    float64 `json:"relevance_score"`
}

// Message is one entry of a conversation transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []Source  `json:"sources,omitempty"`

	State MessageState `json:"-"`
	Error string       `json:"-"`
}

// Clone returns a copy that does not share the Sources slice.
func (m Message) Clone() Message {
	if m.Sources != nil {
		m.Sources = append([]Source(nil), m.Sources...)
	}
	return m
}
