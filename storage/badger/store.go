package badger

import (
	"context"

	"github.com/poiesic/thinkdocs/storage"
)

// Store implements storage.Store on a shared Backend.
type Store struct {
	backend *Backend
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store over backend.
func NewStore(backend *Backend) *Store {
	return &Store{backend: backend}
}

// Close is a no-op; the backend is owned by the DB.
func (s *Store) Close() error {
	return nil
}

// DB owns a Backend and hands out store and vector sessions over it.
type DB struct {
	backend *Backend
}

var (
	_ storage.Opener       = (*DB)(nil)
	_ storage.VectorOpener = (*DB)(nil)
)

// OpenDB opens a BadgerDB database at path, or an in-memory one.
func OpenDB(path string, inMemory bool) (*DB, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &DB{backend: backend}, nil
}

// Open returns a store session.
func (d *DB) Open(ctx context.Context) (storage.Store, error) {
	if d.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return NewStore(d.backend), nil
}

// OpenVectors returns a vector store session.
func (d *DB) OpenVectors(ctx context.Context) (storage.VectorStore, error) {
	if d.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return NewVectorStore(d.backend), nil
}

// Backend exposes the underlying backend.
func (d *DB) Backend() *Backend {
	return d.backend
}

// Close closes the database.
func (d *DB) Close() error {
	return d.backend.Close()
}
