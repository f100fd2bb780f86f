// Package store is the client's single source of truth for UI-visible state.
//
// All writes go through the named actions on Store. Every action is atomic and
// produces one or more Change values that are delivered to subscribers in the
// order the mutations happened. Listeners run outside the store lock and may
// call actions themselves; those changes are queued behind the current one.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// ChangeKind identifies which part of the state changed.
type ChangeKind string

const (
	ChangeActiveConversation ChangeKind = "active_conversation"
	ChangeConversation       ChangeKind = "conversation"
	ChangeConversationRemove ChangeKind = "conversation_removed"
	ChangeConversationID     ChangeKind = "conversation_id"
	ChangeMessages           ChangeKind = "messages"
	ChangeUpload             ChangeKind = "upload"
	ChangeUploadRemove       ChangeKind = "upload_removed"
	ChangeDocuments          ChangeKind = "documents"
	ChangeDocument           ChangeKind = "document"
	ChangeConnection         ChangeKind = "connection"
	ChangeSending            ChangeKind = "sending"
	ChangeNotifications      ChangeKind = "notifications"
)

// Change describes one mutation. ID is the affected entity; PreviousID is set
// when an id was rewritten (conversation id promotion, task id re-keying).
type Change struct {
	Kind       ChangeKind
	ID         string
	PreviousID string
}

// Listener receives changes.
type Listener func(Change)

var (
	// ErrUnknownToken is returned when committing a token that was already resolved.
	ErrUnknownToken = errors.New("unknown optimistic token")
	// ErrNotFound is returned when an action targets an entity the store does not hold.
	ErrNotFound = errors.New("not found")
	// ErrStatusRegression is returned when a document status update would move backwards.
	ErrStatusRegression = errors.New("document status cannot move backwards")
)

type listenerEntry struct {
	id int
	fn Listener
}

// Store holds conversations, the loaded message list, documents, upload progress,
// notifications and the push channel status.
type Store struct {
	mu sync.Mutex

	activeID      string
	loadedID      string
	conversations map[string]*models.Conversation
	messages      []models.Message

	uploads     map[string]*models.UploadProgress
	uploadOrder []string

	documents     map[string]*models.Document
	documentOrder []string
	documentTotal int

	connection    models.ConnectionStatus
	sending       bool
	notifications []models.Notification

	optimistic map[string]*pendingOp

	listeners    []listenerEntry
	nextListener int
	pending      []Change
	dispatching  bool

	now func() time.Time
}

// New returns an empty store in the welcome state.
func New() *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		uploads:       make(map[string]*models.UploadProgress),
		documents:     make(map[string]*models.Document),
		optimistic:    make(map[string]*pendingOp),
		connection:    models.ConnectionDisconnected,
		now:           time.Now,
	}
}

// Subscribe registers fn for every subsequent change. The returned function removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) emitLocked(changes ...Change) {
	s.pending = append(s.pending, changes...)
}

// flush delivers queued changes unless another goroutine is already doing so.
// Must be called without s.mu held.
func (s *Store) flush() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.pending) > 0 {
		ch := s.pending[0]
		s.pending = s.pending[1:]
		listeners := append([]listenerEntry(nil), s.listeners...)
		s.mu.Unlock()
		for _, l := range listeners {
			l.fn(ch)
		}
		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

// SetConnectionStatus records the push channel state.
func (s *Store) SetConnectionStatus(status models.ConnectionStatus) {
	s.mu.Lock()
	if s.connection == status {
		s.mu.Unlock()
		return
	}
	s.connection = status
	s.emitLocked(Change{Kind: ChangeConnection, ID: string(status)})
	s.mu.Unlock()
	s.flush()
}

// ConnectionStatus returns the push channel state.
func (s *Store) ConnectionStatus() models.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection
}

// SetSending marks whether a message send is in flight.
func (s *Store) SetSending(sending bool) {
	s.mu.Lock()
	if s.sending == sending {
		s.mu.Unlock()
		return
	}
	s.sending = sending
	s.emitLocked(Change{Kind: ChangeSending})
	s.mu.Unlock()
	s.flush()
}

// Sending reports whether a message send is in flight.
func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
