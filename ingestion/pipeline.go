package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/thinkdocs/chunking"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/embedding"
	"github.com/poiesic/thinkdocs/sanitize"
	"github.com/poiesic/thinkdocs/storage"
)

// DefaultMaxFileSize is the largest input accepted by validation.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// Extractor turns a file into text. extract.Registry implements it.
type Extractor interface {
	Extract(ctx context.Context, path string) (*core.ExtractedContent, error)
}

// Embedder produces one vector per text. embedding.Embedder implements it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (embedding.Result, error)
	Dimension() int
}

// Pipeline runs documents through extraction, chunking, embedding and storage.
// A Pipeline is safe for concurrent runs.
type Pipeline struct {
	stores      storage.Opener
	vectors     storage.VectorOpener
	extractor   Extractor
	embedder    Embedder
	sanitizer   *sanitize.Sanitizer
	chunkCfg    core.ChunkingConfig
	chunker     *chunking.Chunker
	tokens      *chunking.TokenCounter
	maxFileSize int64
	removeInput bool
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithVectorStore enables best-effort vector upserts.
func WithVectorStore(vectors storage.VectorOpener) Option {
	return func(p *Pipeline) error {
		p.vectors = vectors
		return nil
	}
}

// WithChunkingConfig replaces the default chunking configuration.
func WithChunkingConfig(cfg core.ChunkingConfig) Option {
	return func(p *Pipeline) error {
		if err := core.ValidateChunkingConfig(cfg); err != nil {
			return err
		}
		p.chunkCfg = cfg
		return nil
	}
}

// WithSanitizer sets the sanitizer applied to extracted text and chunks.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(p *Pipeline) error {
		if s != nil {
			p.sanitizer = s
		}
		return nil
	}
}

// WithTokenCounter records token_count for each run.
func WithTokenCounter(tc *chunking.TokenCounter) Option {
	return func(p *Pipeline) error {
		p.tokens = tc
		return nil
	}
}

// WithMaxFileSize sets the validation size ceiling in bytes.
// Default is DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) error {
		if n > 0 {
			p.maxFileSize = n
		}
		return nil
	}
}

// WithKeepInput leaves input files in place after runs. By default the
// pipeline removes RunRequest.FilePath, which must be a staged copy.
func WithKeepInput() Option {
	return func(p *Pipeline) error {
		p.removeInput = false
		return nil
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(stores storage.Opener, extractor Extractor, embedder Embedder, opts ...Option) (*Pipeline, error) {
	if stores == nil {
		return nil, ErrStoreRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		stores:      stores,
		extractor:   extractor,
		embedder:    embedder,
		sanitizer:   sanitize.New(),
		chunkCfg:    core.DefaultChunkingConfig(),
		maxFileSize: DefaultMaxFileSize,
		removeInput: true,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	chunker, err := chunking.New(p.chunkCfg, chunking.WithLogger(p.logger), chunking.WithSanitizer(p.sanitizer))
	if err != nil {
		return nil, err
	}
	p.chunker = chunker
	return p, nil
}

// Run processes one document delivery. It never panics on stage errors
// and always returns a result; failures are described by the result.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) *RunResult {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	if req.Attempt < 1 {
		req.Attempt = 1
	}

	r := &run{
		p:      p,
		req:    req,
		state:  StateCreated,
		start:  p.now(),
		stats:  core.Stats{core.StatAttempt: req.Attempt},
		logger: p.logger.With("document_id", req.DocumentID, "task_id", req.TaskID, "attempt", req.Attempt),
	}
	defer r.close()

	r.logger.Info("starting document processing", "file", req.FilePath, "owner_id", req.OwnerID)

	if err := r.execute(ctx); err != nil {
		return r.fail(ctx, err)
	}
	return r.result()
}
