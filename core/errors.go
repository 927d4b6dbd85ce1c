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
	"errors"
	"fmt"
)

// Pipeline error taxonomy
var (
	// ErrValidation indicates a bad input file or request. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrExtraction indicates a format engine failure. Retried by the scheduler.
	ErrExtraction = errors.New("extraction error")

	// ErrUnsupportedFormat indicates no extractor accepts the file. Never retried.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrExtraction)

	// ErrChunkingDegraded indicates the chunker fell back to a simpler strategy.
	ErrChunkingDegraded = errors.New("chunking degraded")

	// ErrEmbeddingDimensionMismatch indicates the encoder broke its dimension contract.
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorage indicates a relational store failure.
	ErrStorage = errors.New("storage error")

	// ErrNoChunks indicates chunking produced nothing to persist.
	ErrNoChunks = fmt.Errorf("%w: no chunks generated from text", ErrStorage)

	// ErrStaleJobRecovered marks work force-failed by the sweeper.
	ErrStaleJobRecovered = errors.New("stale job recovered")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidChunkingConfig indicates a ChunkingConfig failed validation.
	ErrInvalidChunkingConfig = errors.New("invalid chunking config")

	// ErrEmptyID indicates a required identifier is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyContent indicates the content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid status")
)

// ErrorType returns the machine readable name recorded with failed jobs.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrUnsupportedFormat):
		return "UnsupportedFormatError"
	case errors.Is(err, ErrExtraction):
		return "ExtractionError"
	case errors.Is(err, ErrEmbeddingDimensionMismatch):
		return "EmbeddingDimensionMismatch"
	case errors.Is(err, ErrStorage):
		return "StorageError"
	case errors.Is(err, ErrChunkingDegraded):
		return "ChunkingDegraded"
	case errors.Is(err, ErrStaleJobRecovered):
		return "StaleJobRecovered"
	default:
		return "InternalError"
	}
}

// IsRetryable reports whether a whole pipeline run may be retried after err.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrNoChunks):
		return false
	case errors.Is(err, ErrExtraction), errors.Is(err, ErrStorage):
		return true
	default:
		return false
	}
}
