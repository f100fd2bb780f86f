// Package library keeps the document list in sync with the backend: listing,
// deletion, reindexing and status updates pushed while documents are ingested.
package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"go.uber.org/zap"
)

// Backend is the subset of the transport client used by the library.
type Backend interface {
	Health(ctx context.Context) (*models.HealthResponse, error)
	ListDocuments(ctx context.Context, filter models.ListFilter) (*models.DocumentList, error)
	DeleteDocument(ctx context.Context, id string) error
	ReindexDocument(ctx context.Context, id string) (*models.ReindexResponse, error)
}

// Tracker follows an ingestion task. It is implemented by upload.Orchestrator.
type Tracker interface {
	Track(taskID, documentID, filename string)
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) {
		if l != nil {
			lib.logger = l
		}
	}
}

// WithTracker sets the tracker used to follow reindex tasks.
func WithTracker(t Tracker) Option {
	return func(lib *Library) { lib.tracker = t }
}

// Library owns the documents held by the store.
// It implements realtime.Consumer for document_processing envelopes.
type Library struct {
	backend     Backend
	store       *store.Store
	tracker     Tracker
	logger      *zap.Logger
	unsubscribe func()
}

// New creates a library over st. Upload records that carry a document id are
// mirrored onto the matching document, so polled progress reaches the list too.
func New(backend Backend, st *store.Store, opts ...Option) *Library {
	lib := &Library{backend: backend, store: st, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(lib)
	}
	lib.unsubscribe = st.Subscribe(lib.onChange)
	return lib
}

func (l *Library) onChange(c store.Change) {
	if c.Kind != store.ChangeUpload {
		return
	}
	rec, ok := l.store.Upload(c.ID)
	if !ok || rec.DocumentID == "" {
		return
	}
	l.advance(rec.DocumentID, rec.Status, 0, rec.ErrorDetails)
}

// advance applies a status observation, ignoring unknown documents and regressions.
func (l *Library) advance(id string, status models.DocumentStatus, chunks int, errMsg string) {
	if status == "" {
		return
	}
	err := l.store.UpdateDocumentStatus(id, status, chunks, errMsg)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrStatusRegression):
		l.logger.Debug("document status regression ignored", zap.String("document_id", id), zap.Error(err))
	default:
		l.logger.Warn("update document status", zap.String("document_id", id), zap.Error(err))
	}
}

// Health checks that the backend is reachable.
func (l *Library) Health(ctx context.Context) (*models.HealthResponse, error) {
	return l.backend.Health(ctx)
}

// Refresh fetches one page of documents matching filter and installs it in the store.
func (l *Library) Refresh(ctx context.Context, filter models.ListFilter) (*models.DocumentList, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	list, err := l.backend.ListDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	l.store.SetDocuments(list.Documents, list.Pagination.Total)
	l.logger.Debug("documents refreshed",
		zap.Int("count", len(list.Documents)),
		zap.Int("total", list.Pagination.Total))
	return list, nil
}

// Delete removes a document on the server and then from the list. A document
// the server no longer knows is removed as well.
func (l *Library) Delete(ctx context.Context, id string) error {
	err := l.backend.DeleteDocument(ctx, id)
	var te *models.TransportError
	if err != nil && !(errors.As(err, &te) && te.Status == http.StatusNotFound) {
		l.store.PushNotification(models.NotificationError, "Could not delete document", err.Error())
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	l.store.RemoveDocument(id)
	l.logger.Info("document deleted", zap.String("id", id))
	return nil
}

// Reindex asks the server to process a document again. The document goes
// back to pending and the returned task is followed like an upload.
func (l *Library) Reindex(ctx context.Context, id string) (*models.ReindexResponse, error) {
	resp, err := l.backend.ReindexDocument(ctx, id)
	if err != nil {
		l.store.PushNotification(models.NotificationError, "Could not reindex document", err.Error())
		return nil, fmt.Errorf("reindex document %s: %w", id, err)
	}
	if err := l.store.ResetDocumentStatus(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if resp.TaskID != "" && l.tracker != nil {
		filename := ""
		if d, ok := l.store.Document(id); ok {
			filename = d.Filename
		}
		l.tracker.Track(resp.TaskID, id, filename)
	}
	l.logger.Info("document reindex started", zap.String("id", id), zap.String("task_id", resp.TaskID))
	return resp, nil
}

// ConsumeEnvelope advances the status of the document a
// document_processing envelope refers to.
func (l *Library) ConsumeEnvelope(env models.Envelope) {
	if env.Type != models.EnvelopeDocumentProcessing || env.DocumentID == "" {
		return
	}
	l.advance(env.DocumentID, env.Status, env.ChunkCount, env.ErrorDetails)
}

// Close stops mirroring upload records.
func (l *Library) Close() {
	l.unsubscribe()
}
