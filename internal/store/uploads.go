package store

import (
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// SetUploadProgress inserts or replaces the progress record for taskID.
func (s *Store) SetUploadProgress(taskID string, rec models.UploadProgress) {
	s.mu.Lock()
	rec.TaskID = taskID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	s.setUploadLocked(taskID, rec)
	s.mu.Unlock()
	s.flush()
}

func (s *Store) setUploadLocked(taskID string, rec models.UploadProgress) {
	if _, ok := s.uploads[taskID]; !ok {
		s.uploadOrder = append(s.uploadOrder, taskID)
	}
	cp := rec
	s.uploads[taskID] = &cp
	s.emitLocked(Change{Kind: ChangeUpload, ID: taskID})
}

// rekeyUploadLocked moves a record to a new task id keeping its position.
func (s *Store) rekeyUploadLocked(from, to string) {
	if from == to {
		return
	}
	rec, ok := s.uploads[from]
	if !ok {
		return
	}
	delete(s.uploads, from)
	rec.TaskID = to
	if _, exists := s.uploads[to]; exists {
		s.uploadOrder = removeString(s.uploadOrder, from)
	} else {
		for i, id := range s.uploadOrder {
			if id == from {
				s.uploadOrder[i] = to
			}
		}
	}
	s.uploads[to] = rec
	for _, op := range s.optimistic {
		if op.kind == kindUpload && op.key == from {
			op.key = to
		}
	}
	s.emitLocked(Change{Kind: ChangeUpload, ID: to, PreviousID: from})
}

// ClearUploadProgress removes the record for taskID.
func (s *Store) ClearUploadProgress(taskID string) {
	s.mu.Lock()
	if _, ok := s.uploads[taskID]; ok {
		s.clearUploadLocked(taskID)
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Store) clearUploadLocked(taskID string) {
	delete(s.uploads, taskID)
	s.uploadOrder = removeString(s.uploadOrder, taskID)
	for tok, op := range s.optimistic {
		if op.kind == kindUpload && op.key == taskID {
			delete(s.optimistic, tok)
		}
	}
	s.emitLocked(Change{Kind: ChangeUploadRemove, ID: taskID})
}

// ClearFinishedUploads removes every record in a terminal status, as when the
// upload dialog is closed.
func (s *Store) ClearFinishedUploads() {
	s.mu.Lock()
	for _, id := range append([]string(nil), s.uploadOrder...) {
		if s.uploads[id].Status.Terminal() {
			s.clearUploadLocked(id)
		}
	}
	s.mu.Unlock()
	s.flush()
}

// Upload returns a copy of the record for taskID.
func (s *Store) Upload(taskID string) (models.UploadProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.uploads[taskID]
	if !ok {
		return models.UploadProgress{}, false
	}
	return *r, true
}

// Uploads returns copies of all records in creation order.
func (s *Store) Uploads() []models.UploadProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UploadProgress, 0, len(s.uploadOrder))
	for _, id := range s.uploadOrder {
		out = append(out, *s.uploads[id])
	}
	return out
}

// ApplyProcessingUpdate merges u into the record it targets, found by task id
// and then by document id. It reports the merged record and whether anything
// changed; ErrNotFound means no record tracks this task.
func (s *Store) ApplyProcessingUpdate(u models.ProcessingUpdate) (models.UploadProgress, bool, error) {
	s.mu.Lock()
	rec := s.findUploadLocked(u.TaskID, u.DocumentID)
	if rec == nil {
		s.mu.Unlock()
		return models.UploadProgress{}, false, ErrNotFound
	}
	merged, changed := MergeProcessingUpdate(*rec, u)
	if changed {
		merged.UpdatedAt = s.now()
		*rec = merged
		s.emitLocked(Change{Kind: ChangeUpload, ID: rec.TaskID})
	}
	out := *rec
	s.mu.Unlock()
	s.flush()
	return out, changed, nil
}

func (s *Store) findUploadLocked(taskID, documentID string) *models.UploadProgress {
	if taskID != "" {
		if r, ok := s.uploads[taskID]; ok {
			return r
		}
	}
	if documentID == "" {
		return nil
	}
	// Most recent record wins when a document was uploaded more than once.
	for i := len(s.uploadOrder) - 1; i >= 0; i-- {
		if r := s.uploads[s.uploadOrder[i]]; r.DocumentID == documentID {
			return r
		}
	}
	return nil
}

// MergeProcessingUpdate folds an incoming status observation into rec. Push
// frames and status polls both go through it, so duplicate or out-of-order
// arrivals are handled the same way regardless of source:
// terminal records never change, status never moves backwards, progress never
// decreases within a status, and completed always reads 100.
func MergeProcessingUpdate(rec models.UploadProgress, in models.ProcessingUpdate) (models.UploadProgress, bool) {
	if rec.Status.Terminal() {
		return rec, false
	}
	status := in.Status
	if status == "" {
		status = rec.Status
	}
	if !rec.Status.CanAdvanceTo(status) && rec.Status != "" {
		return rec, false
	}
	if status == rec.Status && in.Progress < rec.Progress {
		return rec, false
	}

	merged := rec
	merged.Status = status
	progress := in.Progress
	if progress < rec.Progress {
		progress = rec.Progress
	}
	switch {
	case progress > 100:
		progress = 100
	case progress < 0:
		progress = 0
	}
	if status == models.StatusCompleted {
		progress = 100
	}
	merged.Progress = progress
	if in.Message != "" {
		merged.Message = in.Message
	}
	if in.ErrorDetails != "" {
		merged.ErrorDetails = in.ErrorDetails
	}
	if merged.DocumentID == "" {
		merged.DocumentID = in.DocumentID
	}
	return merged, merged != rec
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
