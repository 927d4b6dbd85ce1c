// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package thinkdocs wires configuration, storage, the encoder backend and
// the ingestion pipeline into a single System.
package thinkdocs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/thinkdocs/ai"
	"github.com/poiesic/thinkdocs/ai/gemini"
	"github.com/poiesic/thinkdocs/ai/mock"
	"github.com/poiesic/thinkdocs/ai/openai"
	"github.com/poiesic/thinkdocs/chunking"
	"github.com/poiesic/thinkdocs/config"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/embedding"
	"github.com/poiesic/thinkdocs/extract"
	"github.com/poiesic/thinkdocs/ingestion"
	"github.com/poiesic/thinkdocs/recovery"
	"github.com/poiesic/thinkdocs/reembed"
	"github.com/poiesic/thinkdocs/search"
	"github.com/poiesic/thinkdocs/staging"
	"github.com/poiesic/thinkdocs/storage"
	"github.com/poiesic/thinkdocs/storage/badger"
	"github.com/poiesic/thinkdocs/storage/postgres"
)

// MemoryDataDir opens an in-memory BadgerDB instead of a directory.
const MemoryDataDir = ":memory:"

type database interface {
	storage.Opener
	storage.VectorOpener
	io.Closer
}

// System owns every long-lived component of a deployment.
type System struct {
	cfg       *config.Config
	db        database
	provider  ai.AIProvider
	embedder  *embedding.Embedder
	ocr       *extract.OCR
	extractor *extract.Registry
	pipeline  *ingestion.Pipeline
	runner    *ingestion.Runner
	stager    *staging.Stager
	logger    *slog.Logger
}

// Option configures a System.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	stager   *staging.Stager
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the configuration.
// The System takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithStager replaces the input stager.
func WithStager(stager *staging.Stager) Option {
	return func(o *options) {
		o.stager = stager
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open builds a System from cfg. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (sys *System, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	s := &System{cfg: cfg, logger: o.logger.With("component", "system")}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.db, err = openDatabase(ctx, cfg, o.logger); err != nil {
		return nil, err
	}

	s.provider = o.provider
	if s.provider == nil {
		if s.provider, err = newProvider(ctx, &cfg.AI); err != nil {
			return nil, fmt.Errorf("encoder backend: %w", err)
		}
	}

	s.embedder, err = embedding.New(s.provider.Embedder(), cfg.AI.Dimension,
		embedding.WithBatchSize(cfg.EmbedBatchSize),
		embedding.WithPoolSize(cfg.EmbedPoolSize),
		embedding.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	s.extractor = s.newExtractors(o.logger)

	pipelineOpts := []ingestion.Option{
		ingestion.WithVectorStore(s.db),
		ingestion.WithChunkingConfig(cfg.Chunking),
		ingestion.WithMaxFileSize(cfg.MaxFileSize),
		ingestion.WithLogger(o.logger),
	}
	if cfg.KeepInput {
		pipelineOpts = append(pipelineOpts, ingestion.WithKeepInput())
	}
	if cfg.TokenEncoding != "" {
		tc, err := chunking.NewTokenCounter(cfg.TokenEncoding)
		if err != nil {
			s.logger.Warn("token counting disabled", "encoding", cfg.TokenEncoding, "error", err)
		} else {
			pipelineOpts = append(pipelineOpts, ingestion.WithTokenCounter(tc))
		}
	}
	if s.pipeline, err = ingestion.NewPipeline(s.db, s.extractor, s.embedder, pipelineOpts...); err != nil {
		return nil, err
	}

	s.runner, err = ingestion.NewRunner(s.pipeline, ingestion.RunnerOptions{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryDelay,
		SoftTimeout: cfg.SoftTimeout,
		HardTimeout: cfg.HardTimeout,
		Logger:      o.logger,
	})
	if err != nil {
		return nil, err
	}

	s.stager = o.stager
	if s.stager == nil {
		if s.stager, err = newStager(ctx, cfg, o.logger); err != nil {
			return nil, err
		}
	}

	s.logger.Info("system ready",
		"backend", cfg.Backend(),
		"provider", cfg.AI.Provider,
		"dimension", cfg.AI.Dimension,
		"ocr", s.ocr != nil,
		"s3", s.stager.RemoteEnabled())
	return s, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database, error) {
	switch cfg.Backend() {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
		}
		return db, nil
	default:
		inMemory := cfg.DataDir == MemoryDataDir
		path := cfg.DataDir
		if inMemory {
			path = ""
		}
		db, err := badger.OpenDB(path, inMemory)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
		}
		return db, nil
	}
}

func newProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	switch cfg.Provider {
	case ai.ProviderGemini:
		return gemini.NewProvider(ctx, cfg)
	case ai.ProviderMock:
		return mock.NewMockProvider(cfg.Dimension), nil
	default:
		return openai.NewProvider(cfg)
	}
}

func newStager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*staging.Stager, error) {
	opts := []staging.Option{staging.WithLogger(logger)}
	if cfg.Backend() == config.BackendBadger && cfg.DataDir != MemoryDataDir {
		dir := filepath.Join(cfg.DataDir, "staging")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
		opts = append(opts, staging.WithTempDir(dir))
	}
	if cfg.S3Enabled() {
		dl, err := staging.NewS3Downloader(ctx, staging.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, staging.WithDownloader(dl))
	}
	return staging.NewStager(opts...), nil
}

// newExtractors builds the text and PDF extractors. OCR is attached when
// enabled and both a renderer and a recognizer are available.
func (s *System) newExtractors(logger *slog.Logger) *extract.Registry {
	pdfOpts := []extract.PDFOption{
		extract.WithOCRThreshold(s.cfg.OCRThreshold),
		extract.WithPDFLogger(logger),
	}
	if s.cfg.OCREnabled {
		if ocr, err := newOCR(s.cfg.OCRLanguages, logger); err != nil {
			s.logger.Warn("OCR disabled", "error", err)
		} else {
			s.ocr = ocr
			pdfOpts = append(pdfOpts, extract.WithOCR(ocr))
		}
	}

	return extract.NewRegistry([]extract.Extractor{
		extract.NewPDFExtractor(pdfOpts...),
		extract.NewTextExtractor(extract.WithTextLogger(logger)),
	}, extract.WithRegistryLogger(logger))
}

func newOCR(languages []string, logger *slog.Logger) (*extract.OCR, error) {
	recognizer, err := extract.NewTesseractRecognizer(languages...)
	if err != nil {
		return nil, err
	}
	var renderer extract.PageRenderer
	if poppler, err := extract.NewPopplerRenderer(); err == nil {
		renderer = poppler
	} else {
		renderer = extract.NewPdfcpuImageRenderer()
	}
	ocr, err := extract.NewOCR(renderer, recognizer, logger)
	if err != nil {
		_ = recognizer.Close()
		return nil, err
	}
	return ocr, nil
}

// Config returns the configuration the System was built from.
func (s *System) Config() *config.Config {
	return s.cfg
}

// Store opens a store session. The caller must Close it.
func (s *System) Store(ctx context.Context) (storage.Store, error) {
	return s.db.Open(ctx)
}

// Pipeline returns the ingestion pipeline.
func (s *System) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

// RegisterDocument stages a copy of input and records it as a processing
// document owned by ownerID. input is a local path or an s3:// URI. The
// document's FilePath is the staged copy, which processing removes; input
// itself is left alone.
func (s *System) RegisterDocument(ctx context.Context, input, ownerID string) (*core.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", core.ErrValidation)
	}

	staged, err := s.stager.Resolve(ctx, input)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: file not found: %s", core.ErrValidation, input)
		}
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	path, err := filepath.Abs(staged.Path)
	if err != nil {
		_ = staged.Cleanup()
		return nil, err
	}

	store, err := s.db.Open(ctx)
	if err != nil {
		_ = staged.Cleanup()
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	defer store.Close()

	doc, err := store.CreateDocument(ctx, &core.Document{
		Filename:    staged.Filename,
		Title:       strings.TrimSuffix(staged.Filename, filepath.Ext(staged.Filename)),
		ContentType: extract.DetectMimeType(path),
		Size:        staged.Size,
		OwnerID:     ownerID,
		Status:      core.DocumentProcessing,
		FilePath:    path,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		_ = staged.Cleanup()
		return nil, err
	}
	s.logger.Info("document registered", "document_id", doc.ID, "filename", doc.Filename, "size", doc.Size, "source", staged.Source)
	return doc, nil
}

// Process delivers a registered document to the pipeline with retries.
func (s *System) Process(ctx context.Context, documentID string) *ingestion.RunResult {
	return s.runner.Run(ctx, ingestion.RunRequest{DocumentID: documentID})
}

// Ingest registers input and processes it.
func (s *System) Ingest(ctx context.Context, input, ownerID string) (*ingestion.RunResult, error) {
	doc, err := s.RegisterDocument(ctx, input, ownerID)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, doc.ID), nil
}

// NewSweeper returns a sweeper using the configured stale age.
func (s *System) NewSweeper(opts ...recovery.Option) (*recovery.Sweeper, error) {
	opts = append([]recovery.Option{
		recovery.WithStaleAfter(s.cfg.StaleAfter),
		recovery.WithLogger(s.logger),
	}, opts...)
	return recovery.NewSweeper(s.db, opts...)
}

// NewSearcher returns a searcher over the vector store.
func (s *System) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{
		search.WithMinSimilarity(float32(s.cfg.MinSimilarity)),
		search.WithLogger(s.logger),
	}, opts...)
	return search.NewSearcher(s.db, s.provider.Embedder(), opts...)
}

// NewReembedder returns a reembedder writing progress to progress.
// A nil cfg uses reembed.DefaultConfig with the configured dimension.
func (s *System) NewReembedder(cfg *reembed.Config, progress io.Writer) *reembed.Reembedder {
	if cfg == nil {
		cfg = reembed.DefaultConfig()
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = s.cfg.AI.Dimension
	}
	return reembed.NewReembedder(s.db, s.db, s.provider.Embedder(), cfg, progress)
}

// Close releases every component. It is safe to call on a partially
// built System and more than once.
func (s *System) Close() error {
	var errs []error
	if s.embedder != nil {
		s.embedder.Release()
		s.embedder = nil
	}
	if s.ocr != nil {
		if err := s.ocr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ocr: %w", err))
		}
		s.ocr = nil
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing encoder backend", "err", err)
			errs = append(errs, err)
		}
		s.provider = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
		s.db = nil
	}
	return errors.Join(errs...)
}
