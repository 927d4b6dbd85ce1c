package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/poiesic/thinkdocs/storage"
)

// Pool defaults.
const (
	DefaultMaxOpenConns    = 20
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = 10 * time.Minute
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// DB owns the connection pool and hands out sessions.
type DB struct {
	db     *sql.DB
	closed atomic.Bool
	logger *slog.Logger
}

var (
	_ storage.Opener       = (*DB)(nil)
	_ storage.VectorOpener = (*DB)(nil)
)

// Option configures a DB.
type Option func(*options)

type options struct {
	maxOpen   int
	maxIdle   int
	lifetime  time.Duration
	idleTime  time.Duration
	bootstrap bool
	logger    *slog.Logger
}

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpen = n }
}

// WithMaxIdleConns sets the number of idle connections kept.
func WithMaxIdleConns(n int) Option {
	return func(o *options) { o.maxIdle = n }
}

// WithSkipBootstrap leaves the schema alone on connect.
func WithSkipBootstrap() Option {
	return func(o *options) { o.bootstrap = false }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open connects to databaseURL, pings it and applies the schema.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	o := options{
		maxOpen:   DefaultMaxOpenConns,
		maxIdle:   DefaultMaxIdleConns,
		lifetime:  DefaultConnMaxLifetime,
		idleTime:  DefaultConnMaxIdleTime,
		bootstrap: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpen)
	db.SetMaxIdleConns(o.maxIdle)
	db.SetConnMaxLifetime(o.lifetime)
	db.SetConnMaxIdleTime(o.idleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if o.bootstrap {
		if err := EnsureBootstrapped(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	return &DB{db: db, logger: o.logger.With("component", "postgres")}, nil
}

// Open returns a store session pinned to one pooled connection.
func (d *DB) Open(ctx context.Context) (storage.Store, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn, logger: d.logger}, nil
}

// OpenVectors returns a vector store session pinned to one pooled connection.
func (d *DB) OpenVectors(ctx context.Context) (storage.VectorStore, error) {
	conn, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	return &VectorStore{conn: conn}, nil
}

func (d *DB) conn(ctx context.Context) (*sql.Conn, error) {
	if d.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// SQL exposes the pool for maintenance tasks.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Close closes the pool.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.db.Close()
}

// querier is satisfied by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction on conn, committing when fn succeeds.
func withTx(ctx context.Context, conn *sql.Conn, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", storage.ErrTransactionFailed, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// mapError translates driver errors into storage sentinels.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s: %s", storage.ErrDuplicateKey, what, pgErr.Detail)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
