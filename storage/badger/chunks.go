package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// ReplaceChunks deletes a document's chunks and inserts the new set.
// Large sets span several badger transactions; rerunning with the same
// chunks converges on the same state.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []*core.Chunk) (int, error) {
	now := time.Now().UTC()
	fresh := make(map[string]struct{}, len(chunks))
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
		key := string(makeChunkKey(documentID, chunk.Index))
		if _, dup := fresh[key]; dup {
			return 0, fmt.Errorf("%w: chunk index %d of document %s", storage.ErrDuplicateKey, chunk.Index, documentID)
		}
		fresh[key] = struct{}{}
	}

	// keys that the new set overwrites are left to the Set below
	var stale [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeChunkPrefix(documentID), false, func(item *badger.Item) (bool, error) {
			if _, ok := fresh[string(item.Key())]; !ok {
				stale = append(stale, item.KeyCopy(nil))
			}
			return true, nil
		})
	}, false)
	if err != nil {
		return 0, err
	}

	err = s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, key := range stale {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := wb.Set(makeChunkKey(documentID, chunk.Index), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// GetChunks returns a document's chunks ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeChunkPrefix(documentID), true, func(item *badger.Item) (bool, error) {
			err := item.Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				results = append(results, chunk)
				return nil
			})
			return err == nil, err
		})
	}, false)
	return results, err
}

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeChunkPrefix(documentID), false, func(*badger.Item) (bool, error) {
			count++
			return true, nil
		})
	}, false)
	return count, err
}

// UpdateChunkEmbeddings swaps embeddings of existing chunks.
func (s *Store) UpdateChunkEmbeddings(ctx context.Context, chunks ...*core.Chunk) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.DocumentID, chunk.Index)
			stored, err := getJSON(tx, key, storage.UnmarshalChunk)
			if err != nil {
				return err
			}
			if stored == nil {
				return fmt.Errorf("%w: chunk %d of document %s", storage.ErrNotFound, chunk.Index, chunk.DocumentID)
			}
			stored.Embedding = chunk.Embedding
			if err := s.writeChunk(tx, stored); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

func (s *Store) writeChunk(tx *badger.Txn, chunk *core.Chunk) error {
	value, err := storage.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return tx.Set(makeChunkKey(chunk.DocumentID, chunk.Index), value)
}
