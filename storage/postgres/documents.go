package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// Store implements storage.Store on one pinned connection.
type Store struct {
	conn   *sql.Conn
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Close returns the connection to the pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

const documentColumns = `id, filename, title, content_type, size, owner_id, status,
	page_count, word_count, text_length, extraction_method, file_path, uploaded_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var (
		d                    core.Document
		pages, words, length sql.NullInt64
		method, filePath     sql.NullString
		processedAt          sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Filename, &d.Title, &d.ContentType, &d.Size, &d.OwnerID, &d.Status,
		&pages, &words, &length, &method, &filePath, &d.UploadedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	d.PageCount = int(pages.Int64)
	d.WordCount = int(words.Int64)
	d.TextLength = int(length.Int64)
	d.ExtractionMethod = method.String
	d.FilePath = filePath.String
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		d.ProcessedAt = &t
	}
	d.UploadedAt = d.UploadedAt.UTC()
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

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

	const q = `
		INSERT INTO documents
			(id, filename, title, content_type, size, owner_id, status, file_path, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.conn.ExecContext(ctx, q,
		doc.ID, doc.Filename, doc.Title, doc.ContentType, doc.Size, doc.OwnerID, string(doc.Status),
		nullString(doc.FilePath), doc.UploadedAt)
	if err != nil {
		return nil, mapError(err, "document "+doc.ID)
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document "+id)
	}
	return doc, nil
}

// ListDocuments returns documents ordered by upload time.
func (s *Store) ListDocuments(ctx context.Context, status core.DocumentStatus) ([]*core.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY uploaded_at ASC, id ASC`
	return s.queryDocuments(ctx, q, args...)
}

// FindStaleDocuments returns processing documents uploaded before cutoff.
func (s *Store) FindStaleDocuments(ctx context.Context, cutoff time.Time) ([]*core.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents
		WHERE status = 'processing' AND uploaded_at < $1
		ORDER BY uploaded_at ASC`
	return s.queryDocuments(ctx, q, cutoff)
}

func (s *Store) queryDocuments(ctx context.Context, q string, args ...any) ([]*core.Document, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "list documents")
	}
	defer rows.Close()

	var out []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapError(err, "scan document")
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CompleteDocument moves a processing document to completed.
func (s *Store) CompleteDocument(ctx context.Context, id string, stats core.DocumentStats, processedAt time.Time) (bool, error) {
	const q = `
		UPDATE documents
		SET status = 'completed', page_count = $2, word_count = $3, text_length = $4,
			extraction_method = $5, processed_at = $6
		WHERE id = $1 AND status = 'processing'
	`
	res, err := s.conn.ExecContext(ctx, q, id, stats.PageCount, stats.WordCount, stats.TextLength,
		nullString(stats.ExtractionMethod), processedAt)
	return s.conditional(ctx, id, res, err)
}

// FailDocument moves a processing document to failed.
func (s *Store) FailDocument(ctx context.Context, id string, processedAt time.Time) (bool, error) {
	const q = `
		UPDATE documents
		SET status = 'failed', processed_at = $2
		WHERE id = $1 AND status = 'processing'
	`
	res, err := s.conn.ExecContext(ctx, q, id, processedAt)
	return s.conditional(ctx, id, res, err)
}

// conditional distinguishes a skipped update from a missing document.
func (s *Store) conditional(ctx context.Context, id string, res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, mapError(err, "document "+id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := s.conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapError(err, "document "+id)
	}
	if !exists {
		return false, mapError(sql.ErrNoRows, "document "+id)
	}
	s.logger.Debug("document already terminal", "document_id", id)
	return false, nil
}
