package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	list      []models.Conversation
	listErr   error
	deleted   []string
	deleteErr error
	// listing, when set, receives a value when a list call starts and
	// release must then be closed before the call returns.
	listing chan struct{}
	release chan struct{}
}

func (b *fakeBackend) ListConversations(ctx context.Context) (*models.ConversationList, error) {
	if b.listing != nil {
		b.listing <- struct{}{}
		<-b.release
	}
	if b.listErr != nil {
		return nil, b.listErr
	}
	return &models.ConversationList{Conversations: b.list}, nil
}

func (b *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	b.deleted = append(b.deleted, id)
	return b.deleteErr
}

func newTestRegistry(t *testing.T, b *fakeBackend) (*Registry, *store.Store) {
	t.Helper()
	st := store.New()
	r, err := New(b, st)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, st
}

func ids(convs []models.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestList_sortedByLastUpdateDesc(t *testing.T) {
	r, st := newTestRegistry(t, &fakeBackend{})
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st.UpsertConversation(models.Conversation{ID: "old", UpdatedAt: base})
	st.UpsertConversation(models.Conversation{ID: "new", UpdatedAt: base.Add(2 * time.Hour)})
	st.UpsertConversation(models.Conversation{ID: "b-tie", UpdatedAt: base.Add(time.Hour)})
	st.UpsertConversation(models.Conversation{ID: "a-tie", UpdatedAt: base, LastMessageAt: base.Add(time.Hour)})

	require.Equal(t, []string{"new", "a-tie", "b-tie", "old"}, ids(r.List()))
}

func TestRefresh_replacesConfirmedKeepsProvisional(t *testing.T) {
	b := &fakeBackend{list: []models.Conversation{{ID: "s1", Title: "Server one"}, {ID: "s2", Title: "Server two"}}}
	r, st := newTestRegistry(t, b)
	st.UpsertConversation(models.Conversation{ID: "gone", Title: "Deleted elsewhere"})
	tok, err := st.BeginOptimistic(store.ConversationDraft{})
	require.NoError(t, err)

	require.NoError(t, r.Refresh(context.Background()))

	got := map[string]bool{}
	for _, c := range r.List() {
		got[c.ID] = true
	}
	require.Equal(t, map[string]bool{"s1": true, "s2": true, tok.Key(): true}, got)

	b.listErr = &models.TransportError{Op: "list conversations", Status: 500, Message: "boom"}
	require.Error(t, r.Refresh(context.Background()))
	require.Len(t, r.List(), 3)
}

func TestDelete_activeClearsPointer(t *testing.T) {
	b := &fakeBackend{}
	r, st := newTestRegistry(t, b)
	st.UpsertConversation(models.Conversation{ID: "a", Title: "A"})
	st.UpsertConversation(models.Conversation{ID: "b", Title: "B"})
	st.SetActiveConversation("a")

	require.NoError(t, r.Delete(context.Background(), "a"))
	require.Equal(t, []string{"a"}, b.deleted)
	require.Equal(t, "", st.ActiveConversationID())
	require.Equal(t, []string{"b"}, ids(r.List()))
}

func TestDelete_provisionalIsLocal(t *testing.T) {
	b := &fakeBackend{}
	r, st := newTestRegistry(t, b)
	tok, err := st.BeginOptimistic(store.ConversationDraft{})
	require.NoError(t, err)

	require.NoError(t, r.Delete(context.Background(), tok.Key()))
	require.Empty(t, b.deleted)
	require.Empty(t, r.List())
	require.Equal(t, "", st.ActiveConversationID())
}

func TestDelete_serverErrors(t *testing.T) {
	b := &fakeBackend{deleteErr: &models.TransportError{Op: "delete conversation", Status: 404, Message: "Conversation not found"}}
	r, st := newTestRegistry(t, b)
	st.UpsertConversation(models.Conversation{ID: "a"})
	st.UpsertConversation(models.Conversation{ID: "b"})

	require.NoError(t, r.Delete(context.Background(), "a"))
	require.Equal(t, []string{"b"}, ids(r.List()))

	b.deleteErr = &models.TransportError{Op: "delete conversation", Status: 503, Message: "unavailable"}
	err := r.Delete(context.Background(), "b")
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, []string{"b"}, ids(r.List()))
	require.Len(t, st.Notifications(), 1)
}

func TestSearch_followsStore(t *testing.T) {
	r, st := newTestRegistry(t, &fakeBackend{})
	tok, err := st.BeginOptimistic(store.ConversationDraft{Conversation: models.Conversation{Title: "Quantum tunnelling"}})
	require.NoError(t, err)

	res, err := r.Search("quantum", 10)
	require.NoError(t, err)
	require.Equal(t, []string{tok.Key()}, ids(res))

	require.NoError(t, st.Commit(tok, store.ConversationDraft{Conversation: models.Conversation{ID: "srv-1", LastMessagePreview: "barrier penetration"}}))
	res, err = r.Search("quantum", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"srv-1"}, ids(res))

	res, err = r.Search("penetraton", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"srv-1"}, ids(res))

	st.RemoveConversation("srv-1")
	res, err = r.Search("quantum", 10)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestNew_indexesExisting(t *testing.T) {
	st := store.New()
	st.UpsertConversation(models.Conversation{ID: "c1", Title: "Linear algebra"})
	r, err := New(&fakeBackend{}, st)
	require.NoError(t, err)
	defer r.Close()

	res, err := r.Search("algebra", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids(res))

	require.NoError(t, r.Close())
	_, err = r.Search("algebra", 5)
	require.Error(t, err)
}

func TestRefresh_keepsConversationsChangedDuringRequest(t *testing.T) {
	b := &fakeBackend{listing: make(chan struct{}), release: make(chan struct{})}
	r, st := newTestRegistry(t, b)
	st.UpsertConversation(models.Conversation{ID: "gone", Title: "Deleted elsewhere"})
	st.UpsertConversation(models.Conversation{ID: "busy", Title: "Still in use"})

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	<-b.listing

	// While the listing is in flight one conversation gets a reply and a
	// new one is confirmed.
	st.UpsertConversation(models.Conversation{ID: "busy", MessageCount: 4})
	st.UpsertConversation(models.Conversation{ID: "fresh", Title: "Just created"})
	st.SetActiveConversation("fresh")
	close(b.release)
	require.NoError(t, <-done)

	require.ElementsMatch(t, []string{"busy", "fresh"}, ids(r.List()))
	require.Equal(t, "fresh", st.ActiveConversationID())
}
