// Package upload drives document submission: validation, progress records,
// the batched upload call, and ingestion tracking through push updates with a
// polling fallback.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/config"
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"github.com/Lumosity23/studyRAG-sub001/internal/transport"
	"go.uber.org/zap"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("upload orchestrator closed")

// maxEarlyUpdates bounds the push updates held for tasks not yet known.
const maxEarlyUpdates = 64

// Backend is the subset of the transport client used for uploads.
type Backend interface {
	UploadDocuments(ctx context.Context, files []transport.FilePart) (*models.UploadResponse, error)
	DocumentStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
}

// Result is the outcome of one file of a batch.
type Result struct {
	Filename string
	// TaskID keys the progress record; empty for files rejected by validation.
	TaskID string
	// Err is a *models.ValidationError, *models.ProcessingError or
	// *models.TransportError, or nil.
	Err error
}

// Batch is the outcome of one Submit call, in input order.
type Batch struct {
	Results []Result
}

// TaskIDs returns the progress record keys of files that reached the server call.
func (b *Batch) TaskIDs() []string {
	var ids []string
	for _, r := range b.Results {
		if r.TaskID != "" {
			ids = append(ids, r.TaskID)
		}
	}
	return ids
}

// Rejected returns the validation failures.
func (b *Batch) Rejected() []*models.ValidationError {
	var out []*models.ValidationError
	for _, r := range b.Results {
		var ve *models.ValidationError
		if errors.As(r.Err, &ve) {
			out = append(out, ve)
		}
	}
	return out
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

// WithValidator replaces the default validator.
func WithValidator(v *Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithPollInterval sets the status polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithRealtimeGrace sets how long to wait for a push update before polling.
func WithRealtimeGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.grace = d
		}
	}
}

// Orchestrator submits files and keeps their progress records current.
// It implements realtime.Consumer for document_processing envelopes.
type Orchestrator struct {
	backend      Backend
	store        *store.Store
	validator    *Validator
	logger       *zap.Logger
	pollInterval time.Duration
	grace        time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	trackers map[string]*tracker
	closed   bool

	// early holds push updates that arrived before the response naming
	// their task; commitUploaded and Track replay them. earlyMu is held
	// across the lookup-or-buffer and commit-then-take steps.
	earlyMu sync.Mutex
	early   []models.ProcessingUpdate
}

type tracker struct {
	kick chan struct{}
}

// New creates an orchestrator with the default extensions, size limit and timings.
func New(backend Backend, st *store.Store, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		backend:      backend,
		store:        st,
		validator:    NewValidator(config.DefaultExtensions, config.DefaultMaxFileSize),
		logger:       zap.NewNop(),
		pollInterval: config.DefaultPollInterval,
		grace:        config.DefaultRealtimeGrace,
		ctx:          ctx,
		cancel:       cancel,
		trackers:     make(map[string]*tracker),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validator returns the validator in use.
func (o *Orchestrator) Validator() *Validator { return o.validator }

// Submit validates files, seeds a pending record per accepted file and sends
// them in one request. Rejected files never reach the network. The returned
// error is non-nil only when the batched call itself failed; per-file
// failures are reported in the Batch.
func (o *Orchestrator) Submit(ctx context.Context, files []File) (*Batch, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	batch := &Batch{Results: make([]Result, len(files))}
	var (
		parts  []transport.FilePart
		tokens []store.Token
		index  []int
	)
	for i, f := range files {
		batch.Results[i].Filename = f.Name
		if err := o.validator.Validate(f); err != nil {
			batch.Results[i].Err = err
			o.logger.Info("file rejected", zap.String("file", f.Name), zap.Error(err))
			o.store.PushNotification(models.NotificationWarning, "File rejected", err.Error())
			continue
		}
		tok, err := o.store.BeginOptimistic(store.UploadDraft{UploadProgress: models.UploadProgress{
			Filename: f.Name,
			Message:  "Uploading",
		}})
		if err != nil {
			return nil, fmt.Errorf("seed progress for %s: %w", f.Name, err)
		}
		batch.Results[i].TaskID = tok.Key()
		tokens = append(tokens, tok)
		index = append(index, i)
		parts = append(parts, transport.FilePart{Name: f.Name, Content: bytes.NewReader(f.Data)})
	}
	if len(parts) == 0 {
		return batch, nil
	}

	o.logger.Info("uploading batch", zap.Int("files", len(parts)), zap.Int("rejected", len(files)-len(parts)))
	resp, err := o.backend.UploadDocuments(ctx, parts)
	if err != nil {
		for k, tok := range tokens {
			o.store.Rollback(tok, err)
			batch.Results[index[k]].Err = err
		}
		o.logger.Warn("upload batch failed", zap.Int("files", len(parts)), zap.Error(err))
		o.store.PushNotification(models.NotificationError, "Upload failed",
			fmt.Sprintf("%d file(s) not uploaded: %v", len(parts), err))
		return batch, err
	}

	uploaded := make(map[string][]models.UploadedFile)
	for _, u := range resp.UploadedFiles {
		uploaded[u.Filename] = append(uploaded[u.Filename], u)
	}
	failed := make(map[string][]models.FailedUpload)
	for _, f := range resp.FailedUploads {
		failed[f.Filename] = append(failed[f.Filename], f)
	}

	for k, tok := range tokens {
		res := &batch.Results[index[k]]
		name := res.Filename
		switch {
		case len(uploaded[name]) > 0:
			u := uploaded[name][0]
			uploaded[name] = uploaded[name][1:]
			res.TaskID = o.commitUploaded(tok, u)
		case len(failed[name]) > 0:
			f := failed[name][0]
			failed[name] = failed[name][1:]
			perr := &models.ProcessingError{Filename: name, Detail: f.Error}
			res.Err = perr
			o.commitFailed(tok, perr)
		default:
			perr := &models.ProcessingError{Filename: name, Detail: "missing from server response"}
			res.Err = perr
			o.store.Rollback(tok, perr)
			o.store.PushNotification(models.NotificationError, "Upload failed", perr.Error())
		}
	}
	return batch, nil
}

func (o *Orchestrator) commitUploaded(tok store.Token, u models.UploadedFile) string {
	rec := models.UploadProgress{
		TaskID:     u.TaskID,
		DocumentID: u.DocumentID,
		Filename:   u.Filename,
	}
	if rec.TaskID == "" {
		rec.TaskID = u.DocumentID
	}
	tracking := false
	switch u.Status {
	case models.StatusPending, models.StatusProcessing:
		rec.Status = models.StatusProcessing
		rec.Message = "Processing"
		tracking = true
	case models.StatusFailed:
		rec.Status = models.StatusFailed
		rec.ErrorDetails = "ingestion failed"
	default:
		rec.Status = models.StatusCompleted
		rec.Progress = 100
		rec.Message = "Uploaded"
	}
	o.earlyMu.Lock()
	if err := o.store.Commit(tok, store.UploadDraft{UploadProgress: rec}); err != nil {
		o.earlyMu.Unlock()
		o.logger.Warn("commit upload record", zap.String("file", u.Filename), zap.Error(err))
		return tok.Key()
	}
	if rec.TaskID == "" {
		rec.TaskID = tok.Key()
	}
	replay := o.takeEarlyLocked(rec.TaskID, rec.DocumentID)
	o.earlyMu.Unlock()
	o.logger.Debug("upload accepted",
		zap.String("file", u.Filename),
		zap.String("task_id", rec.TaskID),
		zap.String("status", string(rec.Status)))
	if rec.Status == models.StatusFailed {
		o.store.PushNotification(models.NotificationError, "Processing failed",
			(&models.ProcessingError{Filename: u.Filename, DocumentID: u.DocumentID, Detail: rec.ErrorDetails}).Error())
	}
	o.replay(replay)
	if tracking {
		o.track(rec.TaskID)
	}
	return rec.TaskID
}

func (o *Orchestrator) commitFailed(tok store.Token, perr *models.ProcessingError) {
	rec := models.UploadProgress{Status: models.StatusFailed, Message: "Upload rejected", ErrorDetails: perr.Detail}
	if err := o.store.Commit(tok, store.UploadDraft{UploadProgress: rec}); err != nil {
		o.logger.Warn("commit failed upload", zap.String("file", perr.Filename), zap.Error(err))
	}
	o.store.PushNotification(models.NotificationError, "Upload failed", perr.Error())
}

// Track follows an ingestion task started elsewhere, such as a reindex.
// A pending record is created when the store has none for taskID.
func (o *Orchestrator) Track(taskID, documentID, filename string) {
	if taskID == "" {
		return
	}
	o.earlyMu.Lock()
	if _, ok := o.store.Upload(taskID); !ok {
		o.store.SetUploadProgress(taskID, models.UploadProgress{
			DocumentID: documentID,
			Filename:   filename,
			Status:     models.StatusPending,
			Message:    "Queued",
		})
	}
	replay := o.takeEarlyLocked(taskID, documentID)
	o.earlyMu.Unlock()
	o.replay(replay)
	o.track(taskID)
}

// ConsumeEnvelope applies document_processing envelopes to the matching record.
func (o *Orchestrator) ConsumeEnvelope(env models.Envelope) {
	if env.Type != models.EnvelopeDocumentProcessing {
		return
	}
	u := env.ProcessingUpdate()
	o.earlyMu.Lock()
	rec, _, err := o.apply(u)
	if errors.Is(err, store.ErrNotFound) {
		o.bufferEarlyLocked(u)
	}
	o.earlyMu.Unlock()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("apply push update", zap.Error(err))
		}
		return
	}
	o.mu.Lock()
	t := o.trackers[rec.TaskID]
	o.mu.Unlock()
	if t != nil {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

// apply is the single entry point for push and poll observations.
func (o *Orchestrator) apply(u models.ProcessingUpdate) (models.UploadProgress, bool, error) {
	rec, changed, err := o.store.ApplyProcessingUpdate(u)
	if err != nil {
		return rec, false, err
	}
	if changed {
		o.logger.Debug("upload progress",
			zap.String("task_id", rec.TaskID),
			zap.String("status", string(rec.Status)),
			zap.Int("progress", rec.Progress))
		if rec.Status == models.StatusFailed {
			perr := &models.ProcessingError{Filename: rec.Filename, DocumentID: rec.DocumentID, Detail: rec.ErrorDetails}
			o.store.PushNotification(models.NotificationError, "Processing failed", perr.Error())
		}
	}
	return rec, changed, nil
}

// bufferEarlyLocked keeps u for replay, dropping the oldest entry when full.
func (o *Orchestrator) bufferEarlyLocked(u models.ProcessingUpdate) {
	if u.TaskID == "" && u.DocumentID == "" {
		return
	}
	o.early = append(o.early, u)
	if n := len(o.early); n > maxEarlyUpdates {
		o.early = append([]models.ProcessingUpdate(nil), o.early[n-maxEarlyUpdates:]...)
	}
}

// takeEarlyLocked removes and returns, in arrival order, the buffered updates
// for taskID or documentID, re-addressed to taskID.
func (o *Orchestrator) takeEarlyLocked(taskID, documentID string) []models.ProcessingUpdate {
	var out []models.ProcessingUpdate
	kept := o.early[:0]
	for _, u := range o.early {
		if (taskID != "" && u.TaskID == taskID) || (documentID != "" && u.DocumentID == documentID) {
			u.TaskID = taskID
			out = append(out, u)
			continue
		}
		kept = append(kept, u)
	}
	o.early = kept
	return out
}

func (o *Orchestrator) replay(updates []models.ProcessingUpdate) {
	for _, u := range updates {
		if _, _, err := o.apply(u); err != nil {
			o.logger.Debug("replay early update", zap.String("task_id", u.TaskID), zap.Error(err))
		}
	}
}

// Wait blocks until every record in taskIDs is terminal or cleared, and
// returns the records still present.
func (o *Orchestrator) Wait(ctx context.Context, taskIDs []string) ([]models.UploadProgress, error) {
	wake := make(chan struct{}, 1)
	unsubscribe := o.store.Subscribe(func(c store.Change) {
		if c.Kind == store.ChangeUpload || c.Kind == store.ChangeUploadRemove {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	for {
		var out []models.UploadProgress
		done := true
		for _, id := range taskIDs {
			rec, ok := o.store.Upload(id)
			if !ok {
				continue
			}
			out = append(out, rec)
			if !rec.Status.Terminal() {
				done = false
			}
		}
		if done {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-wake:
		}
	}
}

// Close stops every tracker and waits for them to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}
