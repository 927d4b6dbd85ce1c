// Package reembed regenerates the embeddings of stored document chunks
// with the current encoder, typically after a model change or after
// documents were ingested while the encoder was unavailable.
//
// Chunks are processed document by document in batches. Each batch is
// embedded with retry and exponential backoff, normalized to unit length,
// written back to the relational store and, when configured, upserted into
// the vector store.
package reembed
