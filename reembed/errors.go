package reembed

import "errors"

var (
	// ErrDocumentNotCompleted is returned when a requested document has not finished ingestion.
	ErrDocumentNotCompleted = errors.New("document is not completed")
)
