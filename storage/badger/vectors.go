package badger

import (
	"context"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// VectorStore implements storage.VectorStore with a brute-force cosine scan.
type VectorStore struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore over backend.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{backend: backend}
}

// Close is a no-op; the backend is owned by the caller.
func (v *VectorStore) Close() error {
	return nil
}

// Upsert writes records, replacing any with the same ID.
func (v *VectorStore) Upsert(ctx context.Context, records []*core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	return v.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, record := range records {
			value, err := storage.MarshalVectorRecord(record)
			if err != nil {
				return err
			}
			if err := wb.Set(makeVectorKey(record.ID), value); err != nil {
				return err
			}
			if err := wb.Set(makeVectorDocKey(record.DocumentID, record.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDocument removes every record of a document.
func (v *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	var keys [][]byte
	err := v.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeVectorDocPrefix(documentID), false, func(item *badger.Item) (bool, error) {
			key := item.KeyCopy(nil)
			keys = append(keys, key, makeVectorKey(vectorDocKeyID(key)))
			return true, nil
		})
	}, false)
	if err != nil || len(keys) == 0 {
		return err
	}
	return v.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindSimilar scans every record and ranks them by cosine similarity.
func (v *VectorStore) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := v.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(vectorPrefix), true, func(item *badger.Item) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			err := item.Value(func(val []byte) error {
				record, err := storage.UnmarshalVectorRecord(val)
				if err != nil {
					return err
				}
				if len(record.Embedding) == 0 {
					return nil
				}
				similarity := cosineSimilarity(vector, record.Embedding)
				if similarity >= minSimilarity {
					results = append(results, &core.SearchResult{Record: record, Score: similarity})
				}
				return nil
			})
			return err == nil, err
		})
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity returns 0 when either vector has zero norm or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
