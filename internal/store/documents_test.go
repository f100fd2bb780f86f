package store

import (
	"errors"
	"testing"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/stretchr/testify/require"
)

func TestUpdateDocumentStatus_forwardOnly(t *testing.T) {
	paths := [][]models.DocumentStatus{
		{models.StatusPending, models.StatusProcessing, models.StatusCompleted},
		{models.StatusPending, models.StatusProcessing, models.StatusFailed},
	}
	for _, path := range paths {
		s, _ := newTestStore(t)
		s.SetDocuments([]models.Document{{ID: "d", Filename: "a.pdf", Status: path[0]}}, 1)
		for _, st := range path[1:] {
			require.NoError(t, s.UpdateDocumentStatus("d", st, 12, "boom"))
		}
		d, _ := s.Document("d")
		require.Equal(t, path[len(path)-1], d.Status)

		for _, back := range []models.DocumentStatus{models.StatusPending, models.StatusProcessing} {
			err := s.UpdateDocumentStatus("d", back, 0, "")
			require.True(t, errors.Is(err, ErrStatusRegression), "%s -> %s: %v", d.Status, back, err)
		}
		d, _ = s.Document("d")
		require.Equal(t, path[len(path)-1], d.Status)

		require.NoError(t, s.ResetDocumentStatus("d"))
		d, _ = s.Document("d")
		require.Equal(t, models.StatusPending, d.Status)
		require.Zero(t, d.ChunkCount)
		require.Empty(t, d.ErrorMessage)
	}
}

func TestUpdateDocumentStatus_chunkCountOnCompletion(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetDocuments([]models.Document{{ID: "d", Status: models.StatusPending}}, 1)
	require.NoError(t, s.UpdateDocumentStatus("d", models.StatusProcessing, 7, ""))
	d, _ := s.Document("d")
	require.Zero(t, d.ChunkCount)

	require.NoError(t, s.UpdateDocumentStatus("d", models.StatusCompleted, 7, ""))
	d, _ = s.Document("d")
	require.Equal(t, 7, d.ChunkCount)

	// A repeated completion only updates the chunk count.
	require.NoError(t, s.UpdateDocumentStatus("d", models.StatusCompleted, 9, ""))
	require.NoError(t, s.UpdateDocumentStatus("d", models.StatusCompleted, 0, ""))
	d, _ = s.Document("d")
	require.Equal(t, models.StatusCompleted, d.Status)
	require.Equal(t, 9, d.ChunkCount)
	require.ErrorIs(t, s.UpdateDocumentStatus("missing", models.StatusCompleted, 0, ""), ErrNotFound)
	require.ErrorIs(t, s.ResetDocumentStatus("missing"), ErrNotFound)
}

func TestDocuments_listUpsertRemove(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetDocuments([]models.Document{{ID: "a"}, {ID: "b"}}, 5)
	s.UpsertDocument(models.Document{ID: "c"})
	s.UpsertDocument(models.Document{ID: "a", Filename: "renamed.pdf"})

	docs, total := s.Documents()
	require.Equal(t, 6, total)
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"c", "a", "b"}, ids)
	require.Equal(t, "renamed.pdf", docs[1].Filename)

	s.RemoveDocument("a")
	s.RemoveDocument("a")
	docs, total = s.Documents()
	require.Len(t, docs, 2)
	require.Equal(t, 5, total)
}
