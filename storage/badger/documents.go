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

// CreateDocument stores a new document.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = core.DocumentProcessing
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		existing, err := s.readDocument(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, doc.ID)
		}
		if err := s.writeDocument(tx, doc); err != nil {
			return err
		}
		if err := tx.Set(makeDocumentUploadKey(doc.UploadedAt, doc.ID), []byte(doc.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var result *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = s.readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListDocuments returns documents ordered by upload time.
func (s *Store) ListDocuments(ctx context.Context, status core.DocumentStatus) ([]*core.Document, error) {
	var results []*core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return s.scanUploads(tx, func(doc *core.Document, _ time.Time) bool {
			if status == "" || doc.Status == status {
				results = append(results, doc)
			}
			return true
		})
	}, false)
	return results, err
}

// FindStaleDocuments returns processing documents uploaded before cutoff.
func (s *Store) FindStaleDocuments(ctx context.Context, cutoff time.Time) ([]*core.Document, error) {
	var results []*core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return s.scanUploads(tx, func(doc *core.Document, uploadedAt time.Time) bool {
			if !uploadedAt.Before(cutoff) {
				return false
			}
			if doc.Status == core.DocumentProcessing {
				results = append(results, doc)
			}
			return true
		})
	}, false)
	return results, err
}

// CompleteDocument moves a processing document to completed.
func (s *Store) CompleteDocument(ctx context.Context, id string, stats core.DocumentStats, processedAt time.Time) (bool, error) {
	return s.finishDocument(id, func(doc *core.Document) {
		doc.Status = core.DocumentCompleted
		doc.PageCount = stats.PageCount
		doc.WordCount = stats.WordCount
		doc.TextLength = stats.TextLength
		doc.ExtractionMethod = stats.ExtractionMethod
		doc.ProcessedAt = &processedAt
	})
}

// FailDocument moves a processing document to failed.
func (s *Store) FailDocument(ctx context.Context, id string, processedAt time.Time) (bool, error) {
	return s.finishDocument(id, func(doc *core.Document) {
		doc.Status = core.DocumentFailed
		doc.ProcessedAt = &processedAt
	})
}

// finishDocument applies update only while the document is still processing.
func (s *Store) finishDocument(id string, update func(*core.Document)) (bool, error) {
	changed := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := s.readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Status != core.DocumentProcessing {
			return nil
		}
		update(doc)
		if err := s.writeDocument(tx, doc); err != nil {
			return err
		}
		changed = true
		return tx.Commit()
	}, true)
	if err != nil {
		return false, err
	}
	return changed, nil
}

// scanUploads walks the upload index in time order until fn returns false.
func (s *Store) scanUploads(tx *badger.Txn, fn func(doc *core.Document, uploadedAt time.Time) bool) error {
	return scanPrefix(tx, []byte(documentUploadPrefix), true, func(item *badger.Item) (bool, error) {
		uploadedAt := uploadKeyTime(item.Key())
		id, err := item.ValueCopy(nil)
		if err != nil {
			return false, err
		}
		doc, err := s.readDocument(tx, makeDocumentKey(string(id)))
		if err != nil {
			return false, err
		}
		if doc == nil {
			return true, nil
		}
		return fn(doc, uploadedAt), nil
	})
}

func (s *Store) readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	return getJSON(tx, key, storage.UnmarshalDocument)
}

func (s *Store) writeDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.ID), value)
}
