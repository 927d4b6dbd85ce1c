package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/thinkdocs/ai"
	"github.com/poiesic/thinkdocs/core"
)

const (
	// DefaultBatchSize is the number of texts sent to the encoder per call.
	DefaultBatchSize = 8

	// PlaceholderValue fills every component of a degraded-mode vector.
	PlaceholderValue float32 = 0.1
)

var (
	// ErrInvalidDimension is returned for a non-positive dimension.
	ErrInvalidDimension = errors.New("embedding dimension must be positive")

	// ErrCountMismatch indicates the number of vectors differs from the number of inputs.
	ErrCountMismatch = errors.New("embedding count mismatch")
)

// Embedder produces one vector per input text using a pooled encoder.
type Embedder struct {
	encoder   ai.Embedder
	dim       int
	batchSize int
	pool      *ants.Pool
	available atomic.Bool
	logger    *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder) error

// WithBatchSize sets how many texts go to the encoder per call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(e *Embedder) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		e.batchSize = size
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent encoder calls.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(e *Embedder) error {
		if size < 1 {
			size = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Embedder producing dim-length vectors. A nil encoder is
// allowed and puts the Embedder in placeholder mode.
func New(encoder ai.Embedder, dim int, opts ...Option) (*Embedder, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	e := &Embedder{
		encoder:   encoder,
		dim:       dim,
		batchSize: DefaultBatchSize,
		pool:      pool,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(e); optErr != nil {
			e.Release()
			return nil, optErr
		}
	}
	e.logger = e.logger.With("component", "embedder")
	e.available.Store(encoder != nil)

	if encoder == nil {
		e.logger.Warn("no encoder configured, using placeholder vectors", "dimension", dim)
	}
	return e, nil
}

// Dimension is the fixed length of every returned vector.
func (e *Embedder) Dimension() int {
	return e.dim
}

// Available reports whether the most recent encoder call, from any caller,
// succeeded. Use Result.Degraded to learn how a particular call went.
func (e *Embedder) Available() bool {
	return e.available.Load()
}

// Release stops the worker pool. The Embedder should not be used afterwards.
func (e *Embedder) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Placeholder returns the degraded-mode vector of length dim.
func Placeholder(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = PlaceholderValue
	}
	return v
}

// Result holds the vectors of one Embed call.
type Result struct {
	Vectors [][]float32

	// Degraded is set when any vector in this call is a placeholder.
	Degraded bool
}

type batch struct {
	positions []int
	texts     []string
}

// Embed returns one vector per text in input order. Encoder failures
// degrade to placeholders; a vector of the wrong length is fatal.
func (e *Embedder) Embed(ctx context.Context, texts []string) (Result, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return Result{Vectors: out, Degraded: e.encoder == nil}, nil
	}

	var batches []batch
	var current batch
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, e.dim)
			continue
		}
		current.positions = append(current.positions, i)
		current.texts = append(current.texts, text)
		if len(current.texts) == e.batchSize {
			batches = append(batches, current)
			current = batch{}
		}
	}
	if len(current.texts) > 0 {
		batches = append(batches, current)
	}

	degraded := e.encoder == nil
	if len(batches) > 0 {
		var err error
		degraded, err = e.run(ctx, batches, out)
		if err != nil {
			return Result{}, err
		}
	}

	for i, vec := range out {
		if vec == nil {
			return Result{}, fmt.Errorf("%w: no vector for text %d of %d", ErrCountMismatch, i, len(texts))
		}
	}
	return Result{Vectors: out, Degraded: degraded}, nil
}

// run embeds every batch and reports whether any batch fell back to placeholders.
func (e *Embedder) run(ctx context.Context, batches []batch, out [][]float32) (bool, error) {
	if e.encoder == nil {
		for _, b := range batches {
			e.fill(b, out)
		}
		return true, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		degraded atomic.Bool
		done     atomic.Int64
	)
	total := len(batches)

	for _, b := range batches {
		wg.Add(1)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			if err := e.embedBatch(ctx, b, out); err != nil {
				if errors.Is(err, errEncoder) {
					degraded.Store(true)
					e.fill(b, out)
				} else {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			e.logger.Debug("embedded batch", "batch", done.Add(1), "of", total, "size", len(b.texts))
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("submit embedding batch: %w", submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	if degraded.Load() {
		if e.available.Swap(false) {
			e.logger.Warn("encoder unavailable, using placeholder vectors")
		}
		return true, nil
	}
	e.available.Store(true)
	return false, nil
}

// errEncoder marks encoder failures that degrade to placeholders.
var errEncoder = errors.New("encoder failed")

func (e *Embedder) embedBatch(ctx context.Context, b batch, out [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vectors, err := e.encoder.EmbedTexts(ctx, b.texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.logger.Warn("encoder call failed", "size", len(b.texts), "err", err)
		return fmt.Errorf("%w: %w", errEncoder, err)
	}
	if len(vectors) != len(b.texts) {
		return fmt.Errorf("%w: encoder returned %d vectors for %d texts", ErrCountMismatch, len(vectors), len(b.texts))
	}

	for i, vec := range vectors {
		if len(vec) != e.dim {
			return fmt.Errorf("%w: expected %d, received %d", core.ErrEmbeddingDimensionMismatch, e.dim, len(vec))
		}
		out[b.positions[i]] = vec
	}
	return nil
}

func (e *Embedder) fill(b batch, out [][]float32) {
	for _, pos := range b.positions {
		out[pos] = Placeholder(e.dim)
	}
}
