package reembed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
	"github.com/poiesic/thinkdocs/storage/badger"
	"github.com/stretchr/testify/require"
)

// mockEmbedder returns unnormalized vectors unless embedTextsFunc is set.
type mockEmbedder struct {
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls          int
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func setupTestDB(t *testing.T) (*badger.DB, storage.Store) {
	t.Helper()
	db, err := badger.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := db.Open(context.Background())
	require.NoError(t, err)
	return db, store
}

// seedDocument stores a document with n chunks carrying placeholder
// vectors and moves it to status.
func seedDocument(t *testing.T, store storage.Store, id string, n int, status core.DocumentStatus) {
	t.Helper()
	ctx := context.Background()

	_, err := store.CreateDocument(ctx, &core.Document{ID: id, Filename: id + ".pdf", OwnerID: "owner-" + id})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			DocumentID: id,
			Index:      i,
			Content:    fmt.Sprintf("chunk %d of %s", i, id),
			Embedding:  []float32{0.1, 0.1, 0.1},
		}
	}
	if n > 0 {
		_, err = store.ReplaceChunks(ctx, id, chunks)
		require.NoError(t, err)
	}

	switch status {
	case core.DocumentCompleted:
		_, err = store.CompleteDocument(ctx, id, core.DocumentStats{PageCount: 2}, time.Now())
	case core.DocumentFailed:
		_, err = store.FailDocument(ctx, id, time.Now())
	}
	require.NoError(t, err)
}
