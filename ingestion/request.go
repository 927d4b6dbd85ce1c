package ingestion

import (
	"time"

	"github.com/poiesic/thinkdocs/core"
)

// RunRequest identifies one delivery of a document to the pipeline.
type RunRequest struct {
	DocumentID string
	FilePath   string
	OwnerID    string

	// TaskID keys the ProcessingJob. A fresh one is generated when empty.
	TaskID string

	// Attempt is the 1-based delivery number and MaxAttempts the number of
	// deliveries the scheduler will make. A failure is final when it is not
	// retryable or Attempt >= MaxAttempts. Zero values mean a single attempt.
	Attempt     int
	MaxAttempts int
}

func (r RunRequest) lastAttempt() bool {
	return r.MaxAttempts <= 1 || r.Attempt >= r.MaxAttempts
}

// RunResult is what the scheduler gets back from a run.
type RunResult struct {
	DocumentID string         `json:"document_id"`
	TaskID     string         `json:"task_id"`
	OwnerID    string         `json:"owner_id"`
	Status     core.JobStatus `json:"status"`
	State      State          `json:"state"`
	Stats      core.Stats     `json:"stats"`
	ChunkCount int            `json:"chunks_count"`
	Error      string         `json:"error,omitempty"`
	ErrorType  string         `json:"error_type,omitempty"`

	// Final is set on failures the scheduler should not retry.
	Final bool `json:"final,omitempty"`

	// Duplicate is set when the document was already terminal.
	Duplicate bool `json:"duplicate,omitempty"`

	ProcessingTime time.Duration `json:"processing_time"`

	// Err is the underlying error, for errors.Is checks.
	Err error `json:"-"`
}

// Succeeded reports whether the run completed.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Status == core.JobCompleted
}
