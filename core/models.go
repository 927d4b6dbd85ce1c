package core

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier used for vector store points.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Checksum returns the hex encoded BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChecksumReader is Checksum over everything read from r.
func ChecksumReader(r io.Reader) (string, error) {
	h, _ := blake2b.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// JobStatus is the state of a single pipeline invocation.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Document is an uploaded file tracked through ingestion.
type Document struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	Title            string         `json:"title"`
	ContentType      string         `json:"content_type"`
	Size             int64          `json:"size"`
	OwnerID          string         `json:"owner_id"`
	Status           DocumentStatus `json:"status"`
	PageCount        int            `json:"page_count,omitempty"`
	WordCount        int            `json:"word_count,omitempty"`
	TextLength       int            `json:"text_length,omitempty"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	FilePath         string         `json:"file_path,omitempty"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}

// DocumentStats are the extraction figures copied onto a document when it completes.
type DocumentStats struct {
	PageCount        int
	WordCount        int
	TextLength       int
	ExtractionMethod string
}

// Stats is an open, additive map of processing counters.
// Keys keep their meaning across versions; new keys may be added.
type Stats map[string]any

// Stat keys written by the pipeline.
const (
	StatFileSize           = "file_size"
	StatExtractionMethod   = "extraction_method"
	StatTextLength         = "text_length"
	StatPageCount          = "page_count"
	StatWordCount          = "word_count"
	StatChunkCount         = "chunk_count"
	StatOriginalChunkCount = "original_chunk_count"
	StatChunkingStrategy   = "chunking_strategy"
	StatTokenCount         = "token_count"
	StatEmbeddingCount     = "embedding_count"
	StatEmbeddingDimension = "embedding_dimension"
	StatEmbeddingAvailable = "embedding_available"
	StatChunksStored       = "chunks_stored"
	StatVectorsStored      = "vectors_stored"
	StatProcessingTime     = "processing_time_seconds"
	StatErrorType          = "error_type"
	StatDuplicateDelivery  = "duplicate_delivery"
	StatAttempt            = "attempt"
)

// Merge copies other into s and returns s.
func (s Stats) Merge(other Stats) Stats {
	for k, v := range other {
		s[k] = v
	}
	return s
}

// Clone returns a shallow copy.
func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ProcessingJob records one pipeline invocation. TaskID is the scheduler's key for it.
type ProcessingJob struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	DocumentID   string     `json:"document_id"`
	Status       JobStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Stats        Stats      `json:"stats,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Chunk is an ordered segment of a document's text.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"chunk_index"`
	Content    string            `json:"content"`
	PageNumber *int              `json:"page_number,omitempty"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ChunkingConfig controls how text is segmented. Treat values as immutable once built.
type ChunkingConfig struct {
	ChunkSize          int
	Overlap            int
	MinChunkSize       int
	Language           string
	PreserveParagraphs bool
	PreserveSentences  bool
}

// DefaultChunkingConfig returns the defaults used by the pipeline.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:          500,
		Overlap:            50,
		MinChunkSize:       100,
		Language:           "en",
		PreserveParagraphs: true,
		PreserveSentences:  true,
	}
}

// DocumentMetadata describes an extracted file.
type DocumentMetadata struct {
	Filename   string
	FileSize   int64
	MimeType   string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Author     string
	Title      string
	Subject    string
	Language   string
	PageCount  int
	WordCount  int
	Checksum   string
	SourcePath string
}

// ExtractedContent is the transient output of a single extractor call.
type ExtractedContent struct {
	Text             string
	Pages            []string
	Metadata         DocumentMetadata
	ExtractionMethod string
	Confidence       float64

	// OCRAttempted is set when OCR ran over the file, whether or not its
	// text was used.
	OCRAttempted bool
}

// WordCount counts whitespace separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// VectorRecord is what gets written to the vector store for a chunk.
type VectorRecord struct {
	ID         ID
	DocumentID string
	OwnerID    string
	ChunkIndex int
	SourceFile string
	PageCount  int
	Content    string
	Embedding  []float32
}

// VectorRecordID derives the point id for a document chunk.
func VectorRecordID(documentID string, chunkIndex int) ID {
	return IDFromContent(documentID + "_" + strconv.Itoa(chunkIndex))
}

// SearchResult is a chunk match from vector similarity search.
type SearchResult struct {
	Record *VectorRecord
	Score  float32
}
