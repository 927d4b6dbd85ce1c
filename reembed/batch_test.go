package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/thinkdocs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadBatch(t *testing.T, ctx context.Context, it *ChunkIterator) Batch {
	t.Helper()
	docs, err := it.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	chunks, err := it.store.GetChunks(ctx, docs[0].ID)
	require.NoError(t, err)
	return Batch{Document: docs[0], Chunks: chunks}
}

func TestBatchProcessor_Process(t *testing.T) {
	db, store := setupTestDB(t)
	ctx := context.Background()
	seedDocument(t, store, "doc", 2, core.DocumentCompleted)

	vectors, err := db.OpenVectors(ctx)
	require.NoError(t, err)

	processor := NewBatchProcessor(store, vectors, &mockEmbedder{}, 3, 3, time.Millisecond)
	require.NoError(t, processor.Process(ctx, loadBatch(t, ctx, NewChunkIterator(store, 10))))

	updated, err := store.GetChunks(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, updated, 2)
	for _, c := range updated {
		require.Len(t, c.Embedding, 3)
		assert.InDelta(t, 1.0, Magnitude(c.Embedding), 0.01, "vector should be normalized")
		assert.InDelta(t, 1.0/3.0, c.Embedding[0], 1e-6)
	}

	matches, err := vectors.FindSimilar(ctx, updated[0].Embedding, 0.99, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "owner-doc", matches[0].Record.OwnerID)
	assert.Equal(t, "doc.pdf", matches[0].Record.SourceFile)
	assert.Equal(t, 2, matches[0].Record.PageCount)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	_, store := setupTestDB(t)
	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(store, nil, embedder, 0, 3, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), Batch{}))
	assert.Zero(t, embedder.calls)
}

func TestBatchProcessor_RetriesEncoder(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()
	seedDocument(t, store, "doc", 2, core.DocumentCompleted)

	failures := 2
	embedder := &mockEmbedder{}
	embedder.embedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("rate limited")
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0, 3, 4}
		}
		return out, nil
	}

	processor := NewBatchProcessor(store, nil, embedder, 3, 3, time.Millisecond)
	require.NoError(t, processor.Process(ctx, loadBatch(t, ctx, NewChunkIterator(store, 10))))
	assert.Equal(t, 3, embedder.calls)

	updated, err := store.GetChunks(ctx, "doc")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, updated[0].Embedding, 1e-6)
}

func TestBatchProcessor_GivesUp(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()
	seedDocument(t, store, "doc", 1, core.DocumentCompleted)

	embedder := &mockEmbedder{embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("down")
	}}
	processor := NewBatchProcessor(store, nil, embedder, 3, 2, time.Millisecond)

	err := processor.Process(ctx, loadBatch(t, ctx, NewChunkIterator(store, 10)))
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.Equal(t, 2, embedder.calls)

	unchanged, err := store.GetChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.1, 0.1}, unchanged[0].Embedding)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()
	seedDocument(t, store, "doc", 2, core.DocumentCompleted)

	embedder := &mockEmbedder{embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}}
	processor := NewBatchProcessor(store, nil, embedder, 3, 1, time.Millisecond)

	err := processor.Process(ctx, loadBatch(t, ctx, NewChunkIterator(store, 10)))
	assert.ErrorContains(t, err, "embedding count mismatch")
}

func TestBatchProcessor_DimensionMismatch(t *testing.T) {
	_, store := setupTestDB(t)
	ctx := context.Background()
	seedDocument(t, store, "doc", 1, core.DocumentCompleted)

	processor := NewBatchProcessor(store, nil, &mockEmbedder{}, 768, 1, time.Millisecond)

	err := processor.Process(ctx, loadBatch(t, ctx, NewChunkIterator(store, 10)))
	assert.ErrorIs(t, err, core.ErrEmbeddingDimensionMismatch)
}
