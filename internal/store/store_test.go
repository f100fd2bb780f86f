package store

import (
	"errors"
	"testing"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *[]Change) {
	t.Helper()
	s := New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })
	return s, &changes
}

func kinds(changes []Change, kind ChangeKind) []Change {
	var out []Change
	for _, c := range changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestAppendMessage_sortedByTimestamp(t *testing.T) {
	s, _ := newTestStore(t)
	s.UpsertConversation(models.Conversation{ID: "c1", Title: "Physics"})
	s.SetActiveConversation("c1")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		m := models.Message{ID: string(rune('a' + i)), Role: models.RoleUser, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.AppendMessage("c1", m))
	}
	msgs := s.Messages()
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		if !msgs[i-1].CreatedAt.Before(msgs[i].CreatedAt) {
			t.Fatalf("messages out of order at %d: %v then %v", i, msgs[i-1].CreatedAt, msgs[i].CreatedAt)
		}
	}
}

func TestAppendMessage_staleResponseDropped(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetActiveConversation("A")
	require.NoError(t, s.AppendMessage("A", models.Message{ID: "m1"}))

	s.SetActiveConversation("B")
	require.NoError(t, s.AppendMessage("B", models.Message{ID: "m2"}))

	err := s.AppendMessage("A", models.Message{ID: "late"})
	require.True(t, errors.Is(err, models.ErrStaleResponse))
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "m2", msgs[0].ID)

	err = s.ReplaceMessages("A", []models.Message{{ID: "x"}})
	require.True(t, errors.Is(err, models.ErrStaleResponse))
	require.Equal(t, "m2", s.Messages()[0].ID)
}

func TestAppendMessage_duplicateIgnored(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetActiveConversation("c1")
	require.NoError(t, s.AppendMessage("c1", models.Message{ID: "m1", Content: "first"}))
	require.NoError(t, s.AppendMessage("c1", models.Message{ID: "m1", Content: "again"}))
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "first", msgs[0].Content)
}

func TestReplaceMessages_keepsUnsent(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetActiveConversation("c1")
	require.NoError(t, s.AppendMessage("c1", models.Message{ID: "local", State: models.MessageFailed}))
	require.NoError(t, s.ReplaceMessages("c1", []models.Message{
		{ID: "h1", State: models.MessageSent},
		{ID: "h2", State: models.MessageSent},
	}))
	var ids []string
	for _, m := range s.Messages() {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"h1", "h2", "local"}, ids)
}

func TestUpsertConversation_fieldWiseMerge(t *testing.T) {
	s, _ := newTestStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.UpsertConversation(models.Conversation{ID: "c1", Title: "Old", CreatedAt: created, MessageCount: 2})
	s.UpsertConversation(models.Conversation{ID: "c1", Title: "New", LastMessagePreview: "hi"})

	c, ok := s.Conversation("c1")
	require.True(t, ok)
	require.Equal(t, "New", c.Title)
	require.Equal(t, created, c.CreatedAt)
	require.Equal(t, 2, c.MessageCount)
	require.Equal(t, "hi", c.LastMessagePreview)
}

func TestRemoveConversation_activeClearsPointer(t *testing.T) {
	s, changes := newTestStore(t)
	s.UpsertConversation(models.Conversation{ID: "a"})
	s.UpsertConversation(models.Conversation{ID: "b"})
	s.SetActiveConversation("a")
	require.NoError(t, s.AppendMessage("a", models.Message{ID: "m"}))

	*changes = nil
	s.RemoveConversation("a")

	require.Equal(t, "", s.ActiveConversationID())
	require.Empty(t, s.Messages())
	require.Len(t, s.Conversations(), 1)
	active := kinds(*changes, ChangeActiveConversation)
	require.Len(t, active, 1)
	require.Equal(t, "", active[0].ID)
}

func TestRemoveConversation_inactiveKeepsPointer(t *testing.T) {
	s, _ := newTestStore(t)
	s.UpsertConversation(models.Conversation{ID: "a"})
	s.UpsertConversation(models.Conversation{ID: "b"})
	s.SetActiveConversation("a")
	s.RemoveConversation("b")
	require.Equal(t, "a", s.ActiveConversationID())
}

func TestSubscribe_orderAndReentrancy(t *testing.T) {
	s := New()
	var got []ChangeKind
	s.Subscribe(func(c Change) {
		got = append(got, c.Kind)
		if c.Kind == ChangeActiveConversation && c.ID == "c1" {
			// Nested action is delivered after the current change.
			s.SetSending(true)
		}
	})
	s.SetActiveConversation("c1")
	s.SetConnectionStatus(models.ConnectionConnected)

	require.Equal(t, []ChangeKind{ChangeActiveConversation, ChangeSending, ChangeConnection}, got)
}

func TestSubscribe_multipleAndUnsubscribe(t *testing.T) {
	s := New()
	var a, b int
	unsubA := s.Subscribe(func(Change) { a++ })
	s.Subscribe(func(Change) { b++ })

	s.SetSending(true)
	unsubA()
	unsubA()
	s.SetSending(false)

	require.Equal(t, 1, a)
	require.Equal(t, 2, b)
}

func TestSetConnectionStatus_noChangeNoEvent(t *testing.T) {
	s, changes := newTestStore(t)
	s.SetConnectionStatus(models.ConnectionDisconnected)
	require.Empty(t, *changes)
	s.SetConnectionStatus(models.ConnectionConnecting)
	require.Equal(t, models.ConnectionConnecting, s.ConnectionStatus())
	require.Len(t, *changes, 1)
}

func TestNotifications(t *testing.T) {
	s, _ := newTestStore(t)
	n1 := s.PushNotification(models.NotificationError, "Upload failed", "b.exe")
	s.PushNotification(models.NotificationInfo, "Connected", "")
	require.Len(t, s.Notifications(), 2)

	s.DismissNotification(n1.ID)
	s.DismissNotification("unknown")
	left := s.Notifications()
	require.Len(t, left, 1)
	require.Equal(t, "Connected", left[0].Title)
}
