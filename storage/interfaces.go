package storage

import (
	"context"
	"time"

	"github.com/poiesic/thinkdocs/core"
)

// DocumentRepository provides operations for managing uploaded documents.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// CreateDocument stores a new document.
	// Generates an ID when empty, defaults Status to processing and sets
	// UploadedAt if not already set.
	// Returns ErrDuplicateKey if the ID is taken.
	CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// ListDocuments returns documents ordered by UploadedAt ascending.
	// An empty status returns every document.
	ListDocuments(ctx context.Context, status core.DocumentStatus) ([]*core.Document, error)

	// CompleteDocument moves a processing document to completed and records
	// its extraction figures. Returns false without writing when the
	// document is no longer processing.
	// Returns ErrNotFound if the document doesn't exist.
	CompleteDocument(ctx context.Context, id string, stats core.DocumentStats, processedAt time.Time) (bool, error)

	// FailDocument moves a processing document to failed.
	// Returns false without writing when the document is no longer processing.
	// Returns ErrNotFound if the document doesn't exist.
	FailDocument(ctx context.Context, id string, processedAt time.Time) (bool, error)

	// FindStaleDocuments returns processing documents uploaded before cutoff.
	FindStaleDocuments(ctx context.Context, cutoff time.Time) ([]*core.Document, error)
}

// JobRepository provides operations for processing job records.
type JobRepository interface {
	// StartJob records a running job for taskID, creating it or restarting
	// an existing one for a retried delivery.
	StartJob(ctx context.Context, taskID, documentID string, startedAt time.Time) (*core.ProcessingJob, error)

	// GetJob retrieves a job by its task ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, taskID string) (*core.ProcessingJob, error)

	// ListJobs returns jobs ordered by CreatedAt ascending.
	// An empty documentID returns every job.
	ListJobs(ctx context.Context, documentID string) ([]*core.ProcessingJob, error)

	// CompleteJob marks a job completed and replaces its stats.
	// Returns ErrNotFound if the job doesn't exist.
	CompleteJob(ctx context.Context, taskID string, stats core.Stats, completedAt time.Time) error

	// FailJob marks a job failed with an error message and replaces its stats.
	// Returns ErrNotFound if the job doesn't exist.
	FailJob(ctx context.Context, taskID, message string, stats core.Stats, completedAt time.Time) error

	// FailStaleJobs force-fails running jobs started before cutoff and
	// returns the jobs it changed.
	FailStaleJobs(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]*core.ProcessingJob, error)
}

// ChunkRepository provides operations for document chunks.
type ChunkRepository interface {
	// ReplaceChunks deletes every chunk of documentID and inserts chunks
	// in one transaction. Generates chunk IDs and CreatedAt when empty.
	// Returns the number of chunks stored.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*core.Chunk) (int, error)

	// GetChunks returns the chunks of a document ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error)

	// CountChunks returns the number of chunks stored for a document.
	CountChunks(ctx context.Context, documentID string) (int, error)

	// UpdateChunkEmbeddings swaps the embeddings of existing chunks,
	// matched by document ID and index. Nothing else changes.
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateChunkEmbeddings(ctx context.Context, chunks ...*core.Chunk) error
}

// Store is a relational store session combining every repository.
// Close releases the session, not necessarily the underlying database.
type Store interface {
	DocumentRepository
	JobRepository
	ChunkRepository

	Close() error
}

// Opener hands out store sessions, one per pipeline run.
type Opener interface {
	Open(ctx context.Context) (Store, error)
}

// VectorStore holds chunk vectors for similarity search.
type VectorStore interface {
	// Upsert writes records, replacing any with the same ID.
	Upsert(ctx context.Context, records []*core.VectorRecord) error

	// DeleteDocument removes every record of a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// FindSimilar finds records similar to the given vector.
	// Returns records with similarity >= minSimilarity, up to limit results.
	// Results are ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	Close() error
}

// VectorOpener hands out vector store sessions, one per pipeline run.
type VectorOpener interface {
	OpenVectors(ctx context.Context) (VectorStore, error)
}
