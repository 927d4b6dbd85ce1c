// Package chunking splits sanitized document text into overlapping segments
// sized for embedding and retrieval.
//
// The Chunker tries structural strategies in order (sections, paragraphs,
// sentences) and accepts the first whose output has a reasonable average
// size, falling back to word-bounded character windows. Output is
// deterministic for identical text and configuration.
//
// If the structural path fails, the Chunker degrades to fixed-size slicing
// and reports core.ErrChunkingDegraded through the returned Result.
package chunking
