package transport

import (
	"context"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// SendMessage calls POST /api/v1/chat/message.
func (c *Client) SendMessage(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	var out models.ChatResponse
	if err := c.postJSON(ctx, "send message", "/api/v1/chat/message", req, &out); err != nil {
		return nil, err
	}
	if out.Conversation.ID == "" {
		return nil, &models.TransportError{Op: "send message", Message: "response has no conversation id"}
	}
	return &out, nil
}

// ListConversations calls GET /api/v1/chat/conversations.
func (c *Client) ListConversations(ctx context.Context) (*models.ConversationList, error) {
	var out models.ConversationList
	if err := c.getJSON(ctx, "list conversations", "/api/v1/chat/conversations", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConversationHistory calls GET /api/v1/chat/conversations/{id}.
func (c *Client) ConversationHistory(ctx context.Context, id string) (*models.ConversationHistory, error) {
	var out models.ConversationHistory
	if err := c.getJSON(ctx, "conversation history", "/api/v1/chat/conversations/"+pathID(id), &out); err != nil {
		return nil, err
	}
	for i := range out.Messages {
		out.Messages[i].State = models.MessageSent
	}
	return &out, nil
}

// DeleteConversation calls DELETE /api/v1/chat/conversations/{id}.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.delete(ctx, "delete conversation", "/api/v1/chat/conversations/"+pathID(id))
}
