package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     &Document{ID: "d1", Filename: "a.pdf", Status: DocumentProcessing},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "missing id",
			doc:     &Document{Filename: "a.pdf", Status: DocumentProcessing},
			wantErr: ErrEmptyID,
		},
		{
			name:    "missing filename",
			doc:     &Document{ID: "d1", Status: DocumentProcessing},
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "unknown status",
			doc:     &Document{ID: "d1", Filename: "a.pdf", Status: "archived"},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		dim     int
		wantErr error
	}{
		{
			name:  "valid chunk without embedding",
			chunk: &Chunk{DocumentID: "d1", Index: 0, Content: "hello"},
			dim:   3,
		},
		{
			name:  "valid chunk with embedding",
			chunk: &Chunk{DocumentID: "d1", Index: 2, Content: "hello", Embedding: []float32{1, 2, 3}},
			dim:   3,
		},
		{
			name:    "blank content",
			chunk:   &Chunk{DocumentID: "d1", Content: " \n\t"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "negative index",
			chunk:   &Chunk{DocumentID: "d1", Index: -1, Content: "x"},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "dimension mismatch",
			chunk:   &Chunk{DocumentID: "d1", Content: "x", Embedding: []float32{1}},
			dim:     3,
			wantErr: ErrEmbeddingDimensionMismatch,
		},
		{
			name:    "missing document id",
			chunk:   &Chunk{Content: "x"},
			wantErr: ErrEmptyID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk, tt.dim)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunkingConfig(t *testing.T) {
	if err := ValidateChunkingConfig(DefaultChunkingConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []ChunkingConfig{
		{ChunkSize: 0},
		{ChunkSize: 100, Overlap: 100},
		{ChunkSize: 100, Overlap: -1},
		{ChunkSize: 100, MinChunkSize: 200},
	}
	for i, cfg := range bad {
		if err := ValidateChunkingConfig(cfg); !errors.Is(err, ErrInvalidChunkingConfig) {
			t.Errorf("case %d: expected ErrInvalidChunkingConfig, got %v", i, err)
		}
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: file is empty", ErrValidation), "ValidationError"},
		{fmt.Errorf("wrap: %w", ErrUnsupportedFormat), "UnsupportedFormatError"},
		{fmt.Errorf("%w: all engines failed", ErrExtraction), "ExtractionError"},
		{ErrNoChunks, "StorageError"},
		{fmt.Errorf("%w: insert", ErrStorage), "StorageError"},
		{ErrEmbeddingDimensionMismatch, "EmbeddingDimensionMismatch"},
		{ErrStaleJobRecovered, "StaleJobRecovered"},
		{errors.New("boom"), "InternalError"},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("%w: engine", ErrExtraction)) {
		t.Error("extraction errors should be retryable")
	}
	if !IsRetryable(fmt.Errorf("%w: insert", ErrStorage)) {
		t.Error("storage errors should be retryable")
	}
	for _, err := range []error{
		ErrUnsupportedFormat,
		ErrNoChunks,
		fmt.Errorf("%w: empty", ErrValidation),
		ErrEmbeddingDimensionMismatch,
		nil,
	} {
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = true, want false", err)
		}
	}
}
