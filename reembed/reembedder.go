// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/thinkdocs/ai"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to embed in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Dimension is the expected vector length; 0 disables the check
	Dimension int

	// DocumentIDs restricts the run to these documents
	DocumentIDs []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of all chunks of completed documents.
type Reembedder struct {
	stores   storage.Opener
	vectors  storage.VectorOpener
	embedder ai.Embedder
	config   *Config
	progress io.Writer
}

// NewReembedder creates a new reembedder.
// vectors: optional; when set, vector records are rewritten as well
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(stores storage.Opener, vectors storage.VectorOpener, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		stores:   stores,
		vectors:  vectors,
		embedder: embedder,
		config:   config,
		progress: progress,
	}
}

// Run executes the reembedding operation and returns the number of chunks
// reembedded. Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	store, err := r.stores.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: open store: %w", core.ErrStorage, err)
	}
	defer store.Close()

	var vectors storage.VectorStore
	if r.vectors != nil {
		vectors, err = r.vectors.OpenVectors(ctx)
		if err != nil {
			return 0, fmt.Errorf("open vector store: %w", err)
		}
		defer vectors.Close()
	}

	iterator := NewChunkIterator(store, r.config.BatchSize, r.config.DocumentIDs...)
	processor := NewBatchProcessor(store, vectors, r.embedder, r.config.Dimension, r.config.MaxRetries, r.config.RetryDelay)

	docs, err := iterator.Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	totalChunks := 0
	for _, doc := range docs {
		n, err := store.CountChunks(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to count chunks of %s: %w", doc.ID, err)
		}
		totalChunks += n
	}
	if totalChunks == 0 {
		fmt.Fprintf(r.progress, "No chunks found in %d documents\n", len(docs))
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks from %d documents (batch size: %d)\n",
		totalChunks, len(docs), iterator.batchSize)

	tracker := NewProgressTracker(r.progress, totalChunks, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = iterator.ForEach(ctx, docs, func(b Batch) error {
		if err := processor.Process(ctx, b); err != nil {
			return fmt.Errorf("failed to process batch of %s: %w", b.Document.ID, err)
		}
		processed += len(b.Chunks)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return processed, nil
}
