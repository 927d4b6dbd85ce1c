package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/thinkdocs/core"
)

var (
	// ErrStoreRequired is returned when no store opener is provided.
	ErrStoreRequired = errors.New("store opener required")

	// ErrExtractorRequired is returned when no extractor is provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrPipelineRequired is returned when a Runner has no pipeline.
	ErrPipelineRequired = errors.New("pipeline required")

	// ErrNoText is returned when extraction succeeds but yields only whitespace.
	ErrNoText = fmt.Errorf("%w: no text content extracted", core.ErrExtraction)

	// ErrInvalidTransition indicates a stage ran out of order.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Retryable reports whether a failed run may be delivered again. Empty
// extraction output is deterministic and never retried.
func Retryable(err error) bool {
	if errors.Is(err, ErrNoText) {
		return false
	}
	return core.IsRetryable(err)
}
