package store

import (
	"fmt"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/google/uuid"
)

type entityKind int

const (
	kindConversation entityKind = iota + 1
	kindMessage
	kindUpload
)

func (k entityKind) String() string {
	switch k {
	case kindConversation:
		return "conversation"
	case kindMessage:
		return "message"
	case kindUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// Entity is a value that can be applied optimistically.
// It is implemented by ConversationDraft, MessageDraft and UploadDraft.
type Entity interface {
	entityKind() entityKind
}

// ConversationDraft is a provisional conversation summary. An empty ID gets a
// temporary id. Beginning a draft for an existing provisional conversation
// re-attaches to it without changing the state.
type ConversationDraft struct {
	models.Conversation
}

// MessageDraft is a user message appended before the server confirms it.
type MessageDraft struct {
	ConversationID string
	models.Message
}

// UploadDraft is an upload progress record created before the upload call.
type UploadDraft struct {
	models.UploadProgress
}

func (ConversationDraft) entityKind() entityKind { return kindConversation }
func (MessageDraft) entityKind() entityKind      { return kindMessage }
func (UploadDraft) entityKind() entityKind       { return kindUpload }

// Token identifies one pending optimistic operation.
type Token struct {
	id   string
	kind entityKind
	key  string
}

// Key returns the id the optimistic entity was created with (temporary
// conversation id, client message id or provisional task id).
func (t Token) Key() string { return t.key }

// IsZero reports whether t is the zero token.
func (t Token) IsZero() bool { return t.id == "" }

type pendingOp struct {
	kind           entityKind
	key            string
	conversationID string
}

// NewProvisionalID returns a temporary conversation id.
func NewProvisionalID() string {
	return models.ProvisionalPrefix + uuid.NewString()
}

// BeginOptimistic applies e to the state and returns a token to Commit or Rollback it.
func (s *Store) BeginOptimistic(e Entity) (Token, error) {
	s.mu.Lock()
	tok, err := s.beginLocked(e)
	s.mu.Unlock()
	s.flush()
	return tok, err
}

func (s *Store) beginLocked(e Entity) (Token, error) {
	op := &pendingOp{kind: e.entityKind()}
	switch v := e.(type) {
	case ConversationDraft:
		c := v.Conversation
		if c.ID == "" {
			c.ID = NewProvisionalID()
		}
		op.key, op.conversationID = c.ID, c.ID
		if existing, ok := s.conversations[c.ID]; ok {
			if !existing.Provisional {
				return Token{}, fmt.Errorf("conversation %s is already confirmed", c.ID)
			}
			break
		}
		now := s.now()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		c.Provisional = true
		s.upsertConversationLocked(c)
		s.setActiveLocked(c.ID)
	case MessageDraft:
		m := v.Message
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		if m.Role == "" {
			m.Role = models.RoleUser
		}
		m.State = models.MessageSending
		if err := s.appendMessageLocked(v.ConversationID, m); err != nil {
			return Token{}, err
		}
		op.key, op.conversationID = m.ID, v.ConversationID
	case UploadDraft:
		r := v.UploadProgress
		if r.TaskID == "" {
			r.TaskID = uuid.NewString()
		}
		r.Status = models.StatusPending
		r.Progress = 0
		r.UpdatedAt = s.now()
		s.setUploadLocked(r.TaskID, r)
		op.key = r.TaskID
	default:
		return Token{}, fmt.Errorf("unsupported optimistic entity %T", e)
	}
	tok := Token{id: uuid.NewString(), kind: op.kind, key: op.key}
	s.optimistic[tok.id] = op
	return tok, nil
}

// Commit reconciles the optimistic entity with the authoritative one, which must
// be of the same kind. Conversations are promoted to the authoritative id;
// messages are replaced in place; upload records are re-keyed to the server task id.
// A message commit for a conversation that is no longer loaded returns
// models.ErrStaleResponse.
func (s *Store) Commit(tok Token, authoritative Entity) error {
	s.mu.Lock()
	err := s.commitLocked(tok, authoritative)
	s.mu.Unlock()
	s.flush()
	return err
}

func (s *Store) commitLocked(tok Token, authoritative Entity) error {
	op, ok := s.optimistic[tok.id]
	if !ok {
		return ErrUnknownToken
	}
	if authoritative.entityKind() != op.kind {
		return fmt.Errorf("commit %s token with %s entity", op.kind, authoritative.entityKind())
	}
	delete(s.optimistic, tok.id)

	switch v := authoritative.(type) {
	case ConversationDraft:
		c := v.Conversation
		if c.ID == "" {
			c.ID = op.key
		}
		c.Provisional = false
		s.promoteConversationLocked(op.key, c.ID)
		s.upsertConversationLocked(c)
	case MessageDraft:
		if op.conversationID != s.loadedID {
			return models.ErrStaleResponse
		}
		i := s.messageIndexLocked(op.key)
		if i < 0 {
			return fmt.Errorf("message %s: %w", op.key, ErrNotFound)
		}
		m := v.Message.Clone()
		if m.ID == "" || (m.ID != op.key && s.messageIndexLocked(m.ID) >= 0) {
			m.ID = op.key
		}
		if m.Role == "" {
			m.Role = s.messages[i].Role
		}
		if m.Content == "" {
			m.Content = s.messages[i].Content
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.messages[i].CreatedAt
		}
		m.State = models.MessageSent
		m.Error = ""
		s.messages[i] = m
		s.emitLocked(Change{Kind: ChangeMessages, ID: op.conversationID})
	case UploadDraft:
		r := v.UploadProgress
		if r.TaskID == "" {
			r.TaskID = op.key
		}
		prev, ok := s.uploads[op.key]
		if !ok {
			return fmt.Errorf("upload %s: %w", op.key, ErrNotFound)
		}
		if r.Filename == "" {
			r.Filename = prev.Filename
		}
		if r.Status == "" {
			r.Status = prev.Status
		}
		r.UpdatedAt = s.now()
		s.rekeyUploadLocked(op.key, r.TaskID)
		s.setUploadLocked(r.TaskID, r)
	}
	return nil
}

// Rollback abandons the optimistic entity. User input is never deleted: a
// message is kept and marked failed with cause. A provisional conversation is
// removed only when it holds no messages. An upload record is marked failed.
func (s *Store) Rollback(tok Token, cause error) {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.flush()
	}()
	op, ok := s.optimistic[tok.id]
	if !ok {
		return
	}
	delete(s.optimistic, tok.id)
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}

	switch op.kind {
	case kindConversation:
		c, ok := s.conversations[op.key]
		if !ok || !c.Provisional {
			return
		}
		if s.loadedID == op.key && len(s.messages) > 0 {
			return
		}
		delete(s.conversations, op.key)
		s.emitLocked(Change{Kind: ChangeConversationRemove, ID: op.key})
		if s.activeID == op.key {
			s.setActiveLocked("")
		}
	case kindMessage:
		if op.conversationID != s.loadedID {
			return
		}
		if i := s.messageIndexLocked(op.key); i >= 0 {
			s.messages[i].State = models.MessageFailed
			s.messages[i].Error = detail
			s.emitLocked(Change{Kind: ChangeMessages, ID: op.conversationID})
		}
	case kindUpload:
		if r, ok := s.uploads[op.key]; ok && !r.Status.Terminal() {
			r.Status = models.StatusFailed
			r.ErrorDetails = detail
			r.UpdatedAt = s.now()
			s.emitLocked(Change{Kind: ChangeUpload, ID: op.key})
		}
	}
}

// PendingOptimistic returns the number of unresolved optimistic operations.
func (s *Store) PendingOptimistic() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.optimistic)
}
