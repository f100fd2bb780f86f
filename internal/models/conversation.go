package models

import (
	"strings"
	"time"
)

// ProvisionalPrefix marks conversation ids synthesized on the client before the server confirms them.
const ProvisionalPrefix = "tmp-"

// Conversation is a conversation summary as shown in the conversation list.
type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	MessageCount       int       `json:"message_count"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at,omitempty"`
	// Provisional is set while the id is a client-side temporary id.
	Provisional bool `json:"-"`
}

// IsProvisionalID reports whether id was synthesized on the client.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Merge applies the non-zero fields of in onto c. The id is never changed here;
// id promotion is handled by the store.
func (c *Conversation) Merge(in Conversation) {
	if in.Title != "" {
		c.Title = in.Title
	}
	if !in.CreatedAt.IsZero() {
		c.CreatedAt = in.CreatedAt
	}
	if !in.UpdatedAt.IsZero() {
		c.UpdatedAt = in.UpdatedAt
	}
	if in.MessageCount != 0 {
		c.MessageCount = in.MessageCount
	}
	if in.LastMessagePreview != "" {
		c.LastMessagePreview = in.LastMessagePreview
	}
	if !in.LastMessageAt.IsZero() {
		c.LastMessageAt = in.LastMessageAt
	}
	c.Provisional = in.Provisional
}

// SortKey is the timestamp the conversation list is ordered by.
func (c *Conversation) SortKey() time.Time {
	if c.LastMessageAt.After(c.UpdatedAt) {
		return c.LastMessageAt
	}
	return c.UpdatedAt
}
