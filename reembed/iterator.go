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

	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to embed in each batch
	DefaultBatchSize = 100
)

// Batch is a run of consecutive chunks from one document.
type Batch struct {
	Document *core.Document
	Chunks   []*core.Chunk
}

// ChunkIterator iterates over the chunks of completed documents in batches.
type ChunkIterator struct {
	store       storage.Store
	batchSize   int
	documentIDs []string
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks per batch (must be > 0)
// documentIDs: restricts iteration to these documents; empty means every completed document
func NewChunkIterator(store storage.Store, batchSize int, documentIDs ...string) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		store:       store,
		batchSize:   batchSize,
		documentIDs: documentIDs,
	}
}

// Documents returns the documents the iterator will visit, in upload order
// unless explicit IDs were given. Explicit IDs must name completed documents.
func (it *ChunkIterator) Documents(ctx context.Context) ([]*core.Document, error) {
	if len(it.documentIDs) == 0 {
		return it.store.ListDocuments(ctx, core.DocumentCompleted)
	}

	docs := make([]*core.Document, 0, len(it.documentIDs))
	for _, id := range it.documentIDs {
		doc, err := it.store.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		if doc.Status != core.DocumentCompleted {
			return nil, fmt.Errorf("%w: %s is %s", ErrDocumentNotCompleted, id, doc.Status)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ForEach calls fn for each batch of docs' chunks.
// Iteration stops on first error from fn or when all chunks are processed.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, docs []*core.Document, fn func(Batch) error) error {
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunks, err := it.store.GetChunks(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("load chunks of %s: %w", doc.ID, err)
		}

		for i := 0; i < len(chunks); i += it.batchSize {
			end := min(i+it.batchSize, len(chunks))
			if err := fn(Batch{Document: doc, Chunks: chunks[i:end]}); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
	return nil
}
