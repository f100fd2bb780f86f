package store

import (
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// SetActiveConversation replaces the active conversation. An empty id presents
// the welcome state. Switching drops the loaded message list; responses for the
// previous conversation are rejected from then on.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	if s.activeID == id {
		s.mu.Unlock()
		return
	}
	s.setActiveLocked(id)
	s.mu.Unlock()
	s.flush()
}

func (s *Store) setActiveLocked(id string) {
	s.activeID = id
	s.loadedID = id
	s.messages = nil
	s.emitLocked(Change{Kind: ChangeActiveConversation, ID: id})
}

// ActiveConversationID returns the active conversation id, or "" in the welcome state.
func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// LoadedConversationID returns the conversation the message list belongs to.
func (s *Store) LoadedConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedID
}

// UpsertConversation inserts c or merges it field-wise into the existing summary.
func (s *Store) UpsertConversation(c models.Conversation) {
	if c.ID == "" {
		return
	}
	s.mu.Lock()
	s.upsertConversationLocked(c)
	s.mu.Unlock()
	s.flush()
}

func (s *Store) upsertConversationLocked(c models.Conversation) {
	if existing, ok := s.conversations[c.ID]; ok {
		existing.Merge(c)
	} else {
		cp := c
		s.conversations[c.ID] = &cp
	}
	s.emitLocked(Change{Kind: ChangeConversation, ID: c.ID})
}

// RemoveConversation drops a summary. When it was active the store returns to
// the welcome state; no other conversation is selected.
func (s *Store) RemoveConversation(id string) {
	s.mu.Lock()
	if _, ok := s.conversations[id]; !ok && s.activeID != id {
		s.mu.Unlock()
		return
	}
	delete(s.conversations, id)
	s.emitLocked(Change{Kind: ChangeConversationRemove, ID: id})
	if s.activeID == id {
		s.setActiveLocked("")
	}
	for tok, op := range s.optimistic {
		if op.conversationID == id {
			delete(s.optimistic, tok)
		}
	}
	s.mu.Unlock()
	s.flush()
}

// Conversation returns a copy of one summary.
func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *c, true
}

// Conversations returns copies of all summaries ordered by id.
func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, id := range sortedKeys(s.conversations) {
		out = append(out, *s.conversations[id])
	}
	return out
}

// AppendMessage appends m to the loaded message list. It returns
// models.ErrStaleResponse and drops m when conversationID is not the loaded
// conversation. A message whose id is already present is ignored.
func (s *Store) AppendMessage(conversationID string, m models.Message) error {
	s.mu.Lock()
	err := s.appendMessageLocked(conversationID, m)
	s.mu.Unlock()
	s.flush()
	return err
}

func (s *Store) appendMessageLocked(conversationID string, m models.Message) error {
	if conversationID == "" || conversationID != s.loadedID {
		return models.ErrStaleResponse
	}
	if m.ID != "" && s.messageIndexLocked(m.ID) >= 0 {
		return nil
	}
	s.messages = append(s.messages, m.Clone())
	s.emitLocked(Change{Kind: ChangeMessages, ID: conversationID})
	return nil
}

// ReplaceMessages installs a freshly loaded history for conversationID, with the
// same stale guard as AppendMessage. Messages still being sent are kept at the end.
func (s *Store) ReplaceMessages(conversationID string, msgs []models.Message) error {
	s.mu.Lock()
	if conversationID == "" || conversationID != s.loadedID {
		s.mu.Unlock()
		return models.ErrStaleResponse
	}
	next := make([]models.Message, 0, len(msgs)+len(s.messages))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		seen[m.ID] = true
		next = append(next, m.Clone())
	}
	for _, m := range s.messages {
		if m.State != models.MessageSent && !seen[m.ID] {
			next = append(next, m)
		}
	}
	s.messages = next
	s.emitLocked(Change{Kind: ChangeMessages, ID: conversationID})
	s.mu.Unlock()
	s.flush()
	return nil
}

// Messages returns a copy of the loaded message list.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) messageIndexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// promoteConversationLocked rewrites every reference to the temporary id from
// to the authoritative id to: the summary, the active pointer, the loaded list
// key and pending optimistic operations.
func (s *Store) promoteConversationLocked(from, to string) {
	if from == to {
		return
	}
	if c, ok := s.conversations[from]; ok {
		delete(s.conversations, from)
		if existing, ok := s.conversations[to]; ok {
			existing.Merge(*c)
		} else {
			c.ID = to
			s.conversations[to] = c
		}
	}
	if s.activeID == from {
		s.activeID = to
	}
	if s.loadedID == from {
		s.loadedID = to
	}
	for _, op := range s.optimistic {
		if op.conversationID == from {
			op.conversationID = to
		}
		if op.kind == kindConversation && op.key == from {
			op.key = to
		}
	}
	s.emitLocked(Change{Kind: ChangeConversationID, ID: to, PreviousID: from})
}
