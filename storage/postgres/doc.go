// Package postgres implements the storage interfaces on PostgreSQL with
// the pgvector extension.
//
// A DB wraps a pooled *sql.DB opened through the pgx stdlib driver. Each
// Store or VectorStore session pins one connection from the pool and
// returns it on Close. The schema in scripts/initdb.sql is applied on
// first connect.
//
// Chunk embeddings and chunk vectors use an unconstrained vector column,
// so the embedding dimension is a deployment choice. Similarity search
// ranks by cosine distance (the <=> operator) and reports 1 - distance.
package postgres
