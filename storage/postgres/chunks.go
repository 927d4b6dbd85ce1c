package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// vectorArg maps an empty embedding to NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// ReplaceChunks deletes a document's chunks and inserts the new set in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []*core.Chunk) (int, error) {
	now := time.Now().UTC()
	for _, chunk := range chunks {
		chunk.DocumentID = documentID
		if chunk.ID == "" {
			chunk.ID = uuid.NewString()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		if err := core.ValidateChunk(chunk, 0); err != nil {
			return 0, err
		}
	}

	err := withTx(ctx, s.conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
			return mapError(err, "delete chunks")
		}
		if len(chunks) == 0 {
			return nil
		}

		const q = `
			INSERT INTO document_chunks
				(id, document_id, chunk_index, content, page_number, embedding, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			metadata, err := marshalMetadata(chunk.Metadata)
			if err != nil {
				return err
			}
			var page sql.NullInt64
			if chunk.PageNumber != nil {
				page = sql.NullInt64{Int64: int64(*chunk.PageNumber), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				chunk.ID, documentID, chunk.Index, chunk.Content, page, vectorArg(chunk.Embedding), metadata, chunk.CreatedAt,
			); err != nil {
				return mapError(err, fmt.Sprintf("chunk %d of document %s", chunk.Index, documentID))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return string(data), nil
}

// GetChunks returns a document's chunks ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, content, page_number, embedding, metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := s.conn.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, mapError(err, "get chunks")
	}
	defer rows.Close()

	var out []*core.Chunk
	for rows.Next() {
		var (
			ch        core.Chunk
			page      sql.NullInt64
			embedding sql.Null[pgvector.Vector]
			metadata  []byte
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Index, &ch.Content, &page, &embedding, &metadata, &ch.CreatedAt); err != nil {
			return nil, mapError(err, "scan chunk")
		}
		if page.Valid {
			p := int(page.Int64)
			ch.PageNumber = &p
		}
		if embedding.Valid {
			ch.Embedding = embedding.V.Slice()
		}
		if len(metadata) > 0 && string(metadata) != "{}" {
			if err := json.Unmarshal(metadata, &ch.Metadata); err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
		}
		ch.CreatedAt = ch.CreatedAt.UTC()
		out = append(out, &ch)
	}
	return out, rows.Err()
}

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count chunks")
	}
	return n, nil
}

// UpdateChunkEmbeddings swaps embeddings of existing chunks.
func (s *Store) UpdateChunkEmbeddings(ctx context.Context, chunks ...*core.Chunk) error {
	return withTx(ctx, s.conn, func(tx *sql.Tx) error {
		for _, chunk := range chunks {
			res, err := tx.ExecContext(ctx,
				`UPDATE document_chunks SET embedding = $3 WHERE document_id = $1 AND chunk_index = $2`,
				chunk.DocumentID, chunk.Index, vectorArg(chunk.Embedding))
			if err != nil {
				return mapError(err, "update chunk embedding")
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return mapError(sql.ErrNoRows, fmt.Sprintf("chunk %d of document %s", chunk.Index, chunk.DocumentID))
			}
		}
		return nil
	})
}
