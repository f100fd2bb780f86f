package store

import (
	"fmt"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// SetDocuments replaces the document list with a fresh page from the server.
func (s *Store) SetDocuments(docs []models.Document, total int) {
	s.mu.Lock()
	s.documents = make(map[string]*models.Document, len(docs))
	s.documentOrder = s.documentOrder[:0]
	for _, d := range docs {
		cp := d
		if _, dup := s.documents[d.ID]; !dup {
			s.documentOrder = append(s.documentOrder, d.ID)
		}
		s.documents[d.ID] = &cp
	}
	s.documentTotal = total
	s.emitLocked(Change{Kind: ChangeDocuments})
	s.mu.Unlock()
	s.flush()
}

// UpsertDocument inserts d or replaces the stored copy.
func (s *Store) UpsertDocument(d models.Document) {
	s.mu.Lock()
	if _, ok := s.documents[d.ID]; !ok {
		s.documentOrder = append([]string{d.ID}, s.documentOrder...)
		s.documentTotal++
	}
	cp := d
	s.documents[d.ID] = &cp
	s.emitLocked(Change{Kind: ChangeDocument, ID: d.ID})
	s.mu.Unlock()
	s.flush()
}

// UpdateDocumentStatus moves a document forward along pending → processing →
// completed|failed. Backward moves return ErrStatusRegression and leave the
// document untouched. chunkCount is recorded only on completion.
func (s *Store) UpdateDocumentStatus(id string, status models.DocumentStatus, chunkCount int, errMsg string) error {
	s.mu.Lock()
	d, ok := s.documents[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if d.Status != "" && !d.Status.CanAdvanceTo(status) {
		if d.Status != status {
			s.mu.Unlock()
			return fmt.Errorf("%s %s -> %s: %w", id, d.Status, status, ErrStatusRegression)
		}
		// A repeated completion may be the first to carry the chunk count.
		if status == models.StatusCompleted && chunkCount > 0 && d.ChunkCount != chunkCount {
			d.ChunkCount = chunkCount
			s.emitLocked(Change{Kind: ChangeDocument, ID: id})
		}
		s.mu.Unlock()
		s.flush()
		return nil
	}
	d.Status = status
	switch status {
	case models.StatusCompleted:
		if chunkCount > 0 {
			d.ChunkCount = chunkCount
		}
		d.ErrorMessage = ""
	case models.StatusFailed:
		d.ErrorMessage = errMsg
	}
	s.emitLocked(Change{Kind: ChangeDocument, ID: id})
	s.mu.Unlock()
	s.flush()
	return nil
}

// ResetDocumentStatus puts a document back to pending for reindexing.
func (s *Store) ResetDocumentStatus(id string) error {
	s.mu.Lock()
	d, ok := s.documents[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	d.Status = models.StatusPending
	d.ChunkCount = 0
	d.ErrorMessage = ""
	s.emitLocked(Change{Kind: ChangeDocument, ID: id})
	s.mu.Unlock()
	s.flush()
	return nil
}

// RemoveDocument drops a document from the list.
func (s *Store) RemoveDocument(id string) {
	s.mu.Lock()
	if _, ok := s.documents[id]; ok {
		delete(s.documents, id)
		s.documentOrder = removeString(s.documentOrder, id)
		if s.documentTotal > 0 {
			s.documentTotal--
		}
		s.emitLocked(Change{Kind: ChangeDocument, ID: id})
	}
	s.mu.Unlock()
	s.flush()
}

// Document returns a copy of one document.
func (s *Store) Document(id string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return models.Document{}, false
	}
	return *d, true
}

// Documents returns copies of the listed documents in server order and the server-side total.
func (s *Store) Documents() ([]models.Document, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Document, 0, len(s.documentOrder))
	for _, id := range s.documentOrder {
		out = append(out, *s.documents[id])
	}
	return out, s.documentTotal
}
