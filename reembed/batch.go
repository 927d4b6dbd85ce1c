package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/thinkdocs/ai"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/retry"
	"github.com/poiesic/thinkdocs/storage"
)

// BatchProcessor handles embedding generation for batches of chunks.
type BatchProcessor struct {
	store          storage.Store
	vectors        storage.VectorStore
	embedder       ai.Embedder
	dim            int
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// vectors: optional vector store kept in sync with the chunks
// dim: expected vector length; 0 accepts whatever the encoder returns
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(store storage.Store, vectors storage.VectorStore, embedder ai.Embedder, dim, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		store:          store,
		vectors:        vectors,
		embedder:       embedder,
		dim:            dim,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         slog.Default().With("component", "reembed"),
	}
}

// Process generates embeddings for a batch and updates the chunks in place
// and in the stores. Vectors are normalized to unit length.
func (bp *BatchProcessor) Process(ctx context.Context, b Batch) error {
	if len(b.Chunks) == 0 {
		return nil
	}

	texts := make([]string, len(b.Chunks))
	for i, chunk := range b.Chunks {
		texts[i] = chunk.Content
	}

	var embeddings [][]float32
	err := retry.WithBackoff(ctx, func(int) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay, retry.WithLogger(bp.logger))
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(b.Chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(b.Chunks), len(embeddings))
	}
	for _, e := range embeddings {
		if bp.dim > 0 && len(e) != bp.dim {
			return fmt.Errorf("%w: expected %d, received %d", core.ErrEmbeddingDimensionMismatch, bp.dim, len(e))
		}
	}

	for i := range b.Chunks {
		b.Chunks[i].Embedding = NormalizeVector(embeddings[i])
	}

	if err := bp.store.UpdateChunkEmbeddings(ctx, b.Chunks...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}

	if bp.vectors != nil {
		if err := bp.vectors.Upsert(ctx, vectorRecords(b)); err != nil {
			return fmt.Errorf("failed to update vectors: %w", err)
		}
	}
	return nil
}

func vectorRecords(b Batch) []*core.VectorRecord {
	records := make([]*core.VectorRecord, len(b.Chunks))
	for i, c := range b.Chunks {
		records[i] = &core.VectorRecord{
			ID:         core.VectorRecordID(c.DocumentID, c.Index),
			DocumentID: c.DocumentID,
			OwnerID:    b.Document.OwnerID,
			ChunkIndex: c.Index,
			SourceFile: b.Document.Filename,
			PageCount:  b.Document.PageCount,
			Content:    c.Content,
			Embedding:  c.Embedding,
		}
	}
	return records
}
