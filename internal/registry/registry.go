// Package registry maintains the conversation list: ordering, refresh from
// the server, deletion and local search.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/Lumosity23/studyRAG-sub001/internal/keyword"
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"go.uber.org/zap"
)

// Backend is the subset of the transport client used by the registry.
type Backend interface {
	ListConversations(ctx context.Context) (*models.ConversationList, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry orders conversation summaries held by the store and keeps a
// search index in sync with them.
type Registry struct {
	backend Backend
	store   *store.Store
	logger  *zap.Logger

	mu          sync.Mutex
	index       *keyword.Index
	unsubscribe func()
	// touched maps a conversation id to the sequence number of its latest
	// upsert; Refresh leaves alone entries touched after it started.
	touched  map[string]uint64
	touchSeq uint64
}

// New creates a registry over st and indexes the summaries it already holds.
func New(backend Backend, st *store.Store, opts ...Option) (*Registry, error) {
	idx, err := keyword.NewIndex()
	if err != nil {
		return nil, err
	}
	r := &Registry{backend: backend, store: st, logger: zap.NewNop(), index: idx, touched: make(map[string]uint64)}
	for _, opt := range opts {
		opt(r)
	}
	r.unsubscribe = st.Subscribe(r.onChange)
	for _, c := range st.Conversations() {
		r.reindex(c.ID)
	}
	return r, nil
}

func (r *Registry) onChange(c store.Change) {
	switch c.Kind {
	case store.ChangeConversation:
		r.touch(c.ID)
		r.reindex(c.ID)
	case store.ChangeConversationID:
		r.touch(c.ID)
		r.drop(c.PreviousID)
		r.reindex(c.ID)
	case store.ChangeConversationRemove:
		r.mu.Lock()
		delete(r.touched, c.ID)
		r.mu.Unlock()
		r.drop(c.ID)
	}
}

func (r *Registry) touch(id string) {
	r.mu.Lock()
	r.touchSeq++
	r.touched[id] = r.touchSeq
	r.mu.Unlock()
}

// touchedSince reports whether id was upserted after sequence number seq.
func (r *Registry) touchedSince(id string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touched[id] > seq
}

func (r *Registry) reindex(id string) {
	conv, ok := r.store.Conversation(id)
	if !ok {
		r.drop(id)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		return
	}
	if err := r.index.Upsert(id, keyword.Doc{Title: conv.Title, Preview: conv.LastMessagePreview}); err != nil {
		r.logger.Warn("index conversation", zap.String("id", id), zap.Error(err))
	}
}

func (r *Registry) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil || id == "" {
		return
	}
	if err := r.index.Delete(id); err != nil {
		r.logger.Warn("unindex conversation", zap.String("id", id), zap.Error(err))
	}
}

// List returns the summaries ordered by last update, newest first; ties by id.
func (r *Registry) List() []models.Conversation {
	convs := r.store.Conversations()
	sort.SliceStable(convs, func(i, j int) bool {
		ki, kj := convs[i].SortKey(), convs[j].SortKey()
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return convs[i].ID < convs[j].ID
	})
	return convs
}

// Upsert merges a server summary into the list.
func (r *Registry) Upsert(c models.Conversation) {
	r.store.UpsertConversation(c)
}

// Refresh replaces the list with the server's. Local provisional
// conversations are kept; confirmed ones the server no longer has are removed.
// Only entries that existed before the request and were not updated while it
// was in flight are removed.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	start := r.touchSeq
	r.mu.Unlock()
	before := make(map[string]bool)
	for _, c := range r.store.Conversations() {
		if !c.Provisional {
			before[c.ID] = true
		}
	}

	list, err := r.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("refresh conversations: %w", err)
	}
	seen := make(map[string]bool, len(list.Conversations))
	for _, c := range list.Conversations {
		seen[c.ID] = true
		r.store.UpsertConversation(c)
	}
	for _, c := range r.store.Conversations() {
		if seen[c.ID] || c.Provisional || !before[c.ID] || r.touchedSince(c.ID, start) {
			continue
		}
		r.store.RemoveConversation(c.ID)
	}
	r.logger.Debug("conversations refreshed", zap.Int("count", len(list.Conversations)))
	return nil
}

// Delete removes a conversation on the server and then locally. When it was
// active the store falls back to the empty state. Provisional conversations
// exist only locally and are removed without a request; a conversation the
// server no longer knows is removed as well.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if c, ok := r.store.Conversation(id); !ok || !c.Provisional {
		err := r.backend.DeleteConversation(ctx, id)
		var te *models.TransportError
		if err != nil && !(errors.As(err, &te) && te.Status == http.StatusNotFound) {
			r.store.PushNotification(models.NotificationError, "Could not delete conversation", err.Error())
			return fmt.Errorf("delete conversation %s: %w", id, err)
		}
	}
	r.store.RemoveConversation(id)
	r.logger.Info("conversation deleted", zap.String("id", id))
	return nil
}

// Search returns up to limit conversations whose title or last message
// preview matches query, best match first. Typos are tolerated.
func (r *Registry) Search(query string, limit int) ([]models.Conversation, error) {
	r.mu.Lock()
	if r.index == nil {
		r.mu.Unlock()
		return nil, errors.New("registry closed")
	}
	hits, err := r.index.Search(query, limit, &keyword.SearchOptions{TitleBoost: 2, Fuzzy: true})
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(hits))
	for _, h := range hits {
		if c, ok := r.store.Conversation(h.ID); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Close stops index maintenance and releases the index.
func (r *Registry) Close() error {
	r.unsubscribe()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		return nil
	}
	err := r.index.Close()
	r.index = nil
	return err
}
