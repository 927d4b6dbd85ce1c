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

package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Filename must not be empty
//   - Status must be a known value
//
// NOT validated (populated by the pipeline):
//   - PageCount, WordCount, TextLength, ExtractionMethod
//   - ProcessedAt
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyID)
	}

	if doc.Filename == "" {
		return fmt.Errorf("%w: filename cannot be empty", ErrInvalidDocument)
	}

	if err := ValidateDocumentStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidateDocumentStatus validates that a DocumentStatus has a known value.
func ValidateDocumentStatus(status DocumentStatus) error {
	switch status {
	case DocumentProcessing, DocumentCompleted, DocumentFailed:
		return nil
	}
	return fmt.Errorf("%w: document status %q", ErrInvalidStatus, status)
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - DocumentID must not be empty
//   - Index must not be negative
//   - Content must not be blank
//   - Embedding, when present, must have the expected dimension (dim <= 0 skips the check)
func ValidateChunk(chunk *Chunk, dim int) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyID)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}

	if IsBlank(chunk.Content) {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if dim > 0 && len(chunk.Embedding) > 0 && len(chunk.Embedding) != dim {
		return fmt.Errorf("%w: %w: expected %d, received %d",
			ErrInvalidChunk, ErrEmbeddingDimensionMismatch, dim, len(chunk.Embedding))
	}

	return nil
}

// ValidateChunkingConfig checks sizes are positive and consistent.
func ValidateChunkingConfig(cfg ChunkingConfig) error {
	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidChunkingConfig)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, chunk size)", ErrInvalidChunkingConfig)
	}
	if cfg.MinChunkSize < 0 || cfg.MinChunkSize > cfg.ChunkSize {
		return fmt.Errorf("%w: min chunk size must be in [0, chunk size]", ErrInvalidChunkingConfig)
	}
	return nil
}

// IsBlank reports whether s is empty or whitespace only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
