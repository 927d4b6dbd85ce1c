package postgres

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// VectorStore implements storage.VectorStore on the chunk_vectors table.
type VectorStore struct {
	conn *sql.Conn
}

var _ storage.VectorStore = (*VectorStore)(nil)

// Close returns the connection to the pool.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// Upsert writes records, replacing any with the same ID.
func (v *VectorStore) Upsert(ctx context.Context, records []*core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	return withTx(ctx, v.conn, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO chunk_vectors
				(id, document_id, owner_id, chunk_index, source_file, page_count, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				owner_id = EXCLUDED.owner_id,
				chunk_index = EXCLUDED.chunk_index,
				source_file = EXCLUDED.source_file,
				page_count = EXCLUDED.page_count,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			// ids are hashes; the bit pattern survives the signed column
			if _, err := stmt.ExecContext(ctx,
				int64(r.ID), r.DocumentID, r.OwnerID, r.ChunkIndex, r.SourceFile, r.PageCount, r.Content,
				pgvector.NewVector(r.Embedding),
			); err != nil {
				return mapError(err, "upsert vector")
			}
		}
		return nil
	})
}

// DeleteDocument removes every record of a document.
func (v *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := v.conn.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	return mapError(err, "delete vectors")
}

// FindSimilar ranks records by cosine distance.
func (v *VectorStore) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	q := `
		SELECT id, document_id, owner_id, chunk_index, source_file, page_count, content, embedding,
			1 - (embedding <=> $1) AS similarity
		FROM chunk_vectors
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
	`
	args := []any{pgvector.NewVector(vector), minSimilarity}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := v.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "find similar")
	}
	defer rows.Close()

	var out []*core.SearchResult
	for rows.Next() {
		var (
			r          core.VectorRecord
			id         int64
			emb        pgvector.Vector
			similarity float64
		)
		if err := rows.Scan(&id, &r.DocumentID, &r.OwnerID, &r.ChunkIndex, &r.SourceFile, &r.PageCount, &r.Content, &emb, &similarity); err != nil {
			return nil, mapError(err, "scan vector")
		}
		r.ID = core.ID(uint64(id))
		r.Embedding = emb.Slice()
		out = append(out, &core.SearchResult{Record: &r, Score: float32(similarity)})
	}
	return out, rows.Err()
}
