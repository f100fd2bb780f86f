package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Backend is an in-process stand-in for the document and chat API. Uploaded
// documents stay pending until the test advances them with Advance.
type Backend struct {
	logger   *zap.Logger
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	seq       int
	documents map[string]*models.Document
	tasks     map[string]*models.TaskStatus
	convs     map[string]*models.Conversation
	history   map[string][]models.Message
	sockets   map[*websocket.Conn]bool
	chatFails int
	uploads   []string
}

// NewBackend starts the backend on a loopback port.
func NewBackend(logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{
		logger:    logger,
		documents: make(map[string]*models.Document),
		tasks:     make(map[string]*models.TaskStatus),
		convs:     make(map[string]*models.Conversation),
		history:   make(map[string][]models.Message),
		sockets:   make(map[*websocket.Conn]bool),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", b.handleHealth)
	r.Post("/api/v1/documents/upload", b.handleUpload)
	r.Get("/api/v1/documents/status/{taskID}", b.handleTaskStatus)
	r.Get("/api/v1/database/documents", b.handleListDocuments)
	r.Delete("/api/v1/database/documents/{id}", b.handleDeleteDocument)
	r.Post("/api/v1/database/documents/{id}/reindex", b.handleReindex)
	r.Post("/api/v1/chat/message", b.handleChat)
	r.Get("/api/v1/chat/conversations", b.handleListConversations)
	r.Get("/api/v1/chat/conversations/{id}", b.handleHistory)
	r.Delete("/api/v1/chat/conversations/{id}", b.handleDeleteConversation)
	r.Get("/ws/processing", b.handleProcessingSocket)

	b.server = httptest.NewServer(r)
	return b
}

// URL is the HTTP base URL.
func (b *Backend) URL() string { return b.server.URL }

// WSURL is the websocket base URL.
func (b *Backend) WSURL() string { return "ws" + strings.TrimPrefix(b.server.URL, "http") }

// Close drops every socket and stops the server.
func (b *Backend) Close() {
	b.mu.Lock()
	for c := range b.sockets {
		_ = c.Close()
	}
	b.mu.Unlock()
	b.server.Close()
}

// Subscribers returns the number of open push channel sockets.
func (b *Backend) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

// DropSockets closes every push channel socket from the server side.
func (b *Backend) DropSockets() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.sockets {
		_ = c.Close()
		delete(b.sockets, c)
	}
}

// FailNextChats makes the next n chat calls answer 503.
func (b *Backend) FailNextChats(n int) {
	b.mu.Lock()
	b.chatFails = n
	b.mu.Unlock()
}

// Uploaded returns the filenames received so far, in arrival order.
func (b *Backend) Uploaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

// SeedDocument adds a completed document.
func (b *Backend) SeedDocument(filename string, chunks int) models.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	d := &models.Document{
		ID:         fmt.Sprintf("doc-%d", b.seq),
		Filename:   filename,
		FileType:   models.FileType(filename),
		Size:       int64(100 * b.seq),
		UploadedAt: time.Now().UTC(),
		Status:     models.StatusCompleted,
		ChunkCount: chunks,
	}
	b.documents[d.ID] = d
	return *d
}

// Advance moves a task and its document to status. With push set the change
// is also broadcast as a document_processing frame.
func (b *Backend) Advance(taskID string, status models.DocumentStatus, progress, chunks int, push bool) error {
	b.mu.Lock()
	task, ok := b.tasks[taskID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown task %s", taskID)
	}
	task.Status = status
	task.Progress = progress
	task.Message = string(status)
	if status == models.StatusFailed {
		task.ErrorDetails = "parser crashed"
	}
	if d := b.documents[task.DocumentID]; d != nil {
		d.Status = status
		if status == models.StatusCompleted {
			d.ChunkCount = chunks
		}
		if status == models.StatusFailed {
			d.ErrorMessage = task.ErrorDetails
		}
	}
	env := models.Envelope{
		Type:         models.EnvelopeDocumentProcessing,
		TaskID:       taskID,
		DocumentID:   task.DocumentID,
		Status:       status,
		Progress:     progress,
		Message:      task.Message,
		ErrorDetails: task.ErrorDetails,
		ChunkCount:   chunks,
	}
	b.mu.Unlock()
	if !push {
		return nil
	}
	return b.Push(env)
}

// Push writes env to every open socket.
func (b *Backend) Push(env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.PushRaw(data)
}

// PushRaw writes a frame as is, for malformed-frame tests.
func (b *Backend) PushRaw(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.sockets {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{Status: "healthy"})
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "no files")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	resp := models.UploadResponse{UploadedFiles: []models.UploadedFile{}, FailedUploads: []models.FailedUpload{}}
	for _, fh := range headers {
		b.uploads = append(b.uploads, fh.Filename)
		if strings.Contains(fh.Filename, "duplicate") {
			resp.FailedUploads = append(resp.FailedUploads, models.FailedUpload{Filename: fh.Filename, Error: "document already exists"})
			continue
		}
		b.seq++
		d := &models.Document{
			ID:         fmt.Sprintf("doc-%d", b.seq),
			Filename:   fh.Filename,
			FileType:   models.FileType(fh.Filename),
			Size:       fh.Size,
			UploadedAt: time.Now().UTC(),
			Status:     models.StatusPending,
		}
		b.documents[d.ID] = d
		task := b.newTaskLocked(d.ID)
		resp.UploadedFiles = append(resp.UploadedFiles, models.UploadedFile{
			Filename:   fh.Filename,
			DocumentID: d.ID,
			TaskID:     task.TaskID,
			Status:     models.StatusPending,
		})
	}
	resp.TotalUploaded = len(resp.UploadedFiles)
	b.logger.Debug("upload", zap.Int("accepted", resp.TotalUploaded), zap.Int("failed", len(resp.FailedUploads)))
	respondJSON(w, http.StatusOK, resp)
}

func (b *Backend) newTaskLocked(documentID string) *models.TaskStatus {
	b.seq++
	task := &models.TaskStatus{
		TaskID:     fmt.Sprintf("task-%d", b.seq),
		DocumentID: documentID,
		Status:     models.StatusPending,
	}
	b.tasks[task.TaskID] = task
	return task
}

func (b *Backend) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	task, ok := b.tasks[chi.URLParam(r, "taskID")]
	var out models.TaskStatus
	if ok {
		out = *task
	}
	b.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (b *Backend) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 20
	}

	b.mu.Lock()
	var docs []models.Document
	for _, d := range b.documents {
		if s := q.Get("status"); s != "" && string(d.Status) != s {
			continue
		}
		if s := q.Get("search"); s != "" && !strings.Contains(strings.ToLower(d.Filename), strings.ToLower(s)) {
			continue
		}
		if ft := q.Get("file_type"); ft != "" && d.FileType != ft {
			continue
		}
		docs = append(docs, *d)
	}
	b.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	total := len(docs)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	respondJSON(w, http.StatusOK, models.DocumentList{
		Documents:  append([]models.Document{}, docs[start:end]...),
		Pagination: models.Pagination{Total: total, Limit: limit, Page: page},
	})
}

func (b *Backend) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.documents[id]
	delete(b.documents, id)
	b.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	respondJSON(w, http.StatusOK, models.StatusResponse{Status: "deleted"})
}

func (b *Backend) handleReindex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	d, ok := b.documents[id]
	if !ok {
		b.mu.Unlock()
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	d.Status = models.StatusPending
	d.ChunkCount = 0
	task := b.newTaskLocked(id)
	b.mu.Unlock()
	respondJSON(w, http.StatusOK, models.ReindexResponse{DocumentID: id, TaskID: task.TaskID, Status: models.StatusPending})
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chatFails > 0 {
		b.chatFails--
		respondError(w, http.StatusServiceUnavailable, "language model unavailable")
		return
	}
	now := time.Now().UTC()
	conv, ok := b.convs[req.ConversationID]
	switch {
	case req.ConversationID == "":
		b.seq++
		conv = &models.Conversation{ID: fmt.Sprintf("conv-%d", b.seq), Title: req.Message, CreatedAt: now}
		b.convs[conv.ID] = conv
	case !ok:
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	b.seq++
	reply := models.ChatReply{
		ID:        fmt.Sprintf("msg-%d", b.seq),
		Content:   "Answer to: " + req.Message,
		CreatedAt: now,
		Sources:   b.sourcesLocked(),
	}
	b.history[conv.ID] = append(b.history[conv.ID],
		models.Message{ID: fmt.Sprintf("msg-%d-q", b.seq), Role: models.RoleUser, Content: req.Message, CreatedAt: now},
		models.Message{ID: reply.ID, Role: models.RoleAssistant, Content: reply.Content, CreatedAt: now, Sources: reply.Sources},
	)
	conv.UpdatedAt = now
	conv.LastMessageAt = now
	conv.MessageCount = len(b.history[conv.ID])
	conv.LastMessagePreview = reply.Content
	respondJSON(w, http.StatusOK, models.ChatResponse{Message: reply, Conversation: *conv})
}

// sourcesLocked cites every completed document.
func (b *Backend) sourcesLocked() []models.Source {
	var out []models.Source
	for _, d := range b.documents {
		if d.Status == models.StatusCompleted {
			out = append(out, models.Source{Filename: filepath.Base(d.Filename), Excerpt: "excerpt", Score: 0.8})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

func (b *Backend) handleListConversations(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := models.ConversationList{Conversations: []models.Conversation{}}
	for _, c := range b.convs {
		out.Conversations = append(out.Conversations, *c)
	}
	b.mu.Unlock()
	sort.Slice(out.Conversations, func(i, j int) bool { return out.Conversations[i].ID < out.Conversations[j].ID })
	respondJSON(w, http.StatusOK, out)
}

func (b *Backend) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	conv, ok := b.convs[id]
	var out models.ConversationHistory
	if ok {
		c := *conv
		out = models.ConversationHistory{Conversation: &c, Messages: append([]models.Message{}, b.history[id]...)}
	}
	b.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (b *Backend) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.convs[id]
	delete(b.convs, id)
	delete(b.history, id)
	b.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, models.StatusResponse{Status: "deleted"})
}

func (b *Backend) handleProcessingSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	b.sockets[conn] = true
	b.mu.Unlock()

	// The client never sends; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.mu.Lock()
	delete(b.sockets, conn)
	b.mu.Unlock()
	_ = conn.Close()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError answers in the backend's {"detail": ...} error shape.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}
