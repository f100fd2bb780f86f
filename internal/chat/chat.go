// Package chat drives message submission and conversation loading against
// the store, reconciling optimistic state with server responses.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/registry"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"github.com/Lumosity23/studyRAG-sub001/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	titleLen   = 60
	previewLen = 100
)

// ErrEmptyMessage is returned by Send for blank text.
var ErrEmptyMessage = errors.New("message is empty")

// Backend is the subset of the transport client used for chat.
type Backend interface {
	SendMessage(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	ConversationHistory(ctx context.Context, id string) (*models.ConversationHistory, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator sends messages and opens conversations.
type Orchestrator struct {
	backend  Backend
	store    *store.Store
	registry *registry.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a chat orchestrator.
func New(backend Backend, st *store.Store, reg *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{backend: backend, store: st, registry: reg, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Send posts text to conversationID. An empty id starts a new conversation
// under a temporary id that is promoted to the server id on success. The user
// message is shown immediately; on failure it stays, marked failed, and the
// TransportError is returned. Callers must not send concurrently; Sending()
// on the store reports an in-flight send.
//
// A confirmed conversation that is not loaded is opened first, so its history
// precedes the new exchange; a failed history load aborts the send.
//
// When the user has switched conversations before the reply arrives, the reply
// is not appended and Send returns it with a nil error.
func (o *Orchestrator) Send(ctx context.Context, conversationID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	o.store.SetSending(true)
	defer o.store.SetSending(false)

	id := conversationID
	var convTok store.Token
	if id == "" || models.IsProvisionalID(id) {
		tok, err := o.store.BeginOptimistic(store.ConversationDraft{Conversation: models.Conversation{
			ID:                 id,
			Title:              utils.Preview(text, titleLen),
			LastMessagePreview: utils.Preview(text, previewLen),
		}})
		if err != nil {
			return nil, fmt.Errorf("start conversation: %w", err)
		}
		convTok, id = tok, tok.Key()
	}
	if o.store.LoadedConversationID() != id {
		if convTok.IsZero() {
			// A confirmed conversation is opened with its history first.
			if err := o.Open(ctx, id); err != nil {
				return nil, err
			}
			if o.store.LoadedConversationID() != id {
				return nil, fmt.Errorf("open conversation %s: %w", id, models.ErrStaleResponse)
			}
		} else {
			o.store.SetActiveConversation(id)
		}
	}

	msgTok, err := o.store.BeginOptimistic(store.MessageDraft{
		ConversationID: id,
		Message:        models.Message{Role: models.RoleUser, Content: text, CreatedAt: o.now()},
	})
	if err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}

	req := models.ChatRequest{Message: text}
	if !models.IsProvisionalID(id) {
		req.ConversationID = id
	}
	o.logger.Debug("sending message", zap.String("conversation_id", id), zap.Int("length", len(text)))
	resp, err := o.backend.SendMessage(ctx, req)
	if err != nil {
		o.store.Rollback(msgTok, err)
		if !convTok.IsZero() {
			o.store.Rollback(convTok, err)
		}
		o.logger.Warn("send message failed", zap.String("conversation_id", id), zap.Error(err))
		o.store.PushNotification(models.NotificationError, "Message not sent", err.Error())
		return nil, err
	}

	reply := resp.AssistantMessage()
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = o.now()
	}
	summary := resp.Conversation
	if summary.LastMessagePreview == "" {
		summary.LastMessagePreview = utils.Preview(reply.Content, previewLen)
	}
	if summary.LastMessageAt.IsZero() {
		summary.LastMessageAt = reply.CreatedAt
	}

	if !convTok.IsZero() {
		if err := o.store.Commit(convTok, store.ConversationDraft{Conversation: summary}); err != nil {
			// The provisional conversation was deleted meanwhile; keep the server copy.
			o.logger.Debug("commit conversation", zap.String("id", summary.ID), zap.Error(err))
			o.registry.Upsert(summary)
		}
	} else {
		o.registry.Upsert(summary)
	}

	if err := o.store.Commit(msgTok, store.MessageDraft{}); err != nil {
		if errors.Is(err, models.ErrStaleResponse) || errors.Is(err, store.ErrUnknownToken) {
			o.logger.Debug("reply for inactive conversation dropped", zap.String("conversation_id", summary.ID))
			return &reply, nil
		}
		return nil, fmt.Errorf("confirm message: %w", err)
	}
	if err := o.store.AppendMessage(summary.ID, reply); err != nil {
		o.logger.Debug("reply for inactive conversation dropped", zap.String("conversation_id", summary.ID))
	}
	return &reply, nil
}

// Open makes id the active conversation and loads its history. Provisional
// conversations have no server history and are only activated. A history
// that arrives after the user moved on is discarded.
func (o *Orchestrator) Open(ctx context.Context, id string) error {
	if id == "" {
		o.NewConversation()
		return nil
	}
	o.store.SetActiveConversation(id)
	if models.IsProvisionalID(id) {
		return nil
	}
	hist, err := o.backend.ConversationHistory(ctx, id)
	if err != nil {
		o.store.PushNotification(models.NotificationError, "Could not load conversation", err.Error())
		return fmt.Errorf("open conversation %s: %w", id, err)
	}
	if hist.Conversation != nil && hist.Conversation.ID == id {
		o.registry.Upsert(*hist.Conversation)
	}
	if err := o.store.ReplaceMessages(id, hist.Messages); err != nil {
		if errors.Is(err, models.ErrStaleResponse) {
			o.logger.Debug("history for inactive conversation dropped", zap.String("conversation_id", id))
			return nil
		}
		return err
	}
	return nil
}

// NewConversation clears the active conversation so the next Send starts a new one.
func (o *Orchestrator) NewConversation() {
	o.store.SetActiveConversation("")
}
