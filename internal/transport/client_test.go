package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/processing")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}))
	res, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", res.Status)
}

func TestTransportError_detailBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "Conversation not found"})
	}))
	_, err := c.ConversationHistory(context.Background(), "missing")
	var te *models.TransportError
	require.True(t, errors.As(err, &te), "expected TransportError, got %T", err)
	require.Equal(t, http.StatusNotFound, te.Status)
	require.Equal(t, "Conversation not found", te.Message)
	require.Equal(t, "conversation history", te.Op)
	require.False(t, te.Retryable())
}

func TestTransportError_networkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(url, "")
	_, err := c.ListConversations(context.Background())
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	require.Zero(t, te.Status)
	require.True(t, te.Retryable())
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail string", `{"detail":"bad file"}`, "bad file"},
		{"error key", `{"error":"invalid request body"}`, "invalid request body"},
		{"structured detail", `{"detail":[{"msg":"field required"}]}`, `[{"msg":"field required"}]`},
		{"plain text", "upstream timeout", "upstream timeout"},
		{"empty", "", "502 Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage([]byte(tt.body), "502 Bad Gateway"); got != tt.want {
				t.Errorf("errorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUploadDocuments_multipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/documents/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		f, err := files[1].Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		require.Equal(t, "# notes", string(b))
		respondJSON(w, http.StatusOK, models.UploadResponse{
			UploadedFiles: []models.UploadedFile{{Filename: "a.txt", TaskID: "t1", Status: models.StatusProcessing}},
			FailedUploads: []models.FailedUpload{{Filename: "b.md", Error: "duplicate"}},
			TotalUploaded: 1,
		})
	}))
	res, err := c.UploadDocuments(context.Background(), []FilePart{
		{Name: "a.txt", Content: strings.NewReader("hello")},
		{Name: "b.md", Content: strings.NewReader("# notes")},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalUploaded)
	require.Equal(t, "t1", res.UploadedFiles[0].TaskID)
	require.Equal(t, "duplicate", res.FailedUploads[0].Error)
}

func TestListDocuments_query(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "thesis", q.Get("search"))
		require.Equal(t, "completed", q.Get("status"))
		require.Equal(t, "pdf", q.Get("file_type"))
		require.Equal(t, "2", q.Get("page"))
		require.Empty(t, q.Get("sort_by"))
		respondJSON(w, http.StatusOK, models.DocumentList{
			Documents:  []models.Document{{ID: "d1", Filename: "thesis.pdf", Status: models.StatusCompleted, ChunkCount: 12}},
			Pagination: models.Pagination{Total: 21, Limit: 20, Page: 2},
		})
	}))
	res, err := c.ListDocuments(context.Background(), models.ListFilter{Search: "thesis", Status: models.StatusCompleted, FileType: "pdf", Page: 2})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	require.Equal(t, 21, res.Pagination.Total)
}

func TestDocumentEndpoints(t *testing.T) {
	var calls []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.EscapedPath())
		switch {
		case r.Method == http.MethodDelete:
			respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		case strings.HasSuffix(r.URL.Path, "/reindex"):
			respondJSON(w, http.StatusAccepted, map[string]string{"task_id": "t9", "status": "pending"})
		default:
			respondJSON(w, http.StatusOK, map[string]any{"status": "processing", "progress": 35, "message": "embedding"})
		}
	}))
	ctx := context.Background()
	require.NoError(t, c.DeleteDocument(ctx, "doc 1"))
	re, err := c.ReindexDocument(ctx, "d2")
	require.NoError(t, err)
	require.Equal(t, "d2", re.DocumentID)
	require.Equal(t, "t9", re.TaskID)
	st, err := c.DocumentStatus(ctx, "t9")
	require.NoError(t, err)
	require.Equal(t, "t9", st.TaskID)
	require.Equal(t, 35, st.Progress)
	require.Equal(t, []string{
		"DELETE /api/v1/database/documents/doc%201",
		"POST /api/v1/database/documents/d2/reindex",
		"GET /api/v1/documents/status/t9",
	}, calls)
}

func TestSendMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "What is RAG?", req.Message)
		require.Empty(t, req.ConversationID)
		respondJSON(w, http.StatusOK, map[string]any{
			"message": map[string]any{
				"id": "m2", "content": "Retrieval augmented generation.", "created_at": now,
				"sources": []map[string]any{{"filename": "notes.md", "excerpt": "RAG combines...", "relevance_score": 0.91}},
			},
			"conversation": map[string]any{"id": "c1", "title": "What is RAG?", "created_at": now, "updated_at": now, "message_count": 2},
		})
	}))
	res, err := c.SendMessage(context.Background(), models.ChatRequest{Message: "What is RAG?"})
	require.NoError(t, err)
	require.Equal(t, "c1", res.Conversation.ID)
	msg := res.AssistantMessage()
	require.Equal(t, models.RoleAssistant, msg.Role)
	require.Len(t, msg.Sources, 1)
	require.InDelta(t, 0.91, msg.Sources[0].Score, 1e-9)
}

func TestSendMessage_missingConversation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"message": map[string]any{"id": "m1"}})
	}))
	_, err := c.SendMessage(context.Background(), models.ChatRequest{Message: "hi"})
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
}

func TestConversationHistory_marksSent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat/conversations/c1", r.URL.Path)
		respondJSON(w, http.StatusOK, map[string]any{"messages": []map[string]any{
			{"id": "m1", "role": "user", "content": "hi"},
			{"id": "m2", "role": "assistant", "content": "hello"},
		}})
	}))
	res, err := c.ConversationHistory(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	for _, m := range res.Messages {
		require.Equal(t, models.MessageSent, m.State)
	}
}

func TestOpenPushChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws/processing", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"system_update","message":"hello"}`))
		// Block until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := c.OpenPushChannel(ctx)
	require.NoError(t, err)
	frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"system_update","message":"hello"}`, string(frame))
	require.NoError(t, conn.Close())
	_, err = conn.ReadMessage()
	require.Error(t, err)
	require.NoError(t, conn.Close(), "second close is a no-op")
}
