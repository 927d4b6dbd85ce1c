// Package embedding turns chunk texts into vectors for the ingestion pipeline.
//
// Embedder wraps a raw ai.Embedder encoder. Work is split into small
// sub-batches that run on a bounded ants worker pool owned by the
// Embedder, and the results are reassembled by position, so output order
// always matches input order. Blank inputs map to zero vectors without
// reaching the encoder.
//
// When the encoder is missing or failing, Embed keeps the pipeline going
// with constant placeholder vectors of the configured dimension and
// Available reports false until the encoder succeeds again.
package embedding
