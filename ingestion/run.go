package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// run holds the state of one pipeline invocation.
type run struct {
	p     *Pipeline
	req   RunRequest
	state State
	start time.Time
	stats core.Stats

	store      storage.Store
	jobStarted bool
	doc        *core.Document
	duplicate  bool

	content   *core.ExtractedContent
	text      string
	pieces    []string
	vectors   [][]float32
	available bool
	stored    int

	logger *slog.Logger
}

type stage struct {
	state State
	fn    func(context.Context) error
}

func (r *run) execute(ctx context.Context) error {
	store, err := r.p.stores.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open store: %w", core.ErrStorage, err)
	}
	r.store = store
	r.startJob(ctx)

	stages := []stage{
		{StateValidating, r.validate},
		{StateExtracting, r.extract},
		{StateChunking, r.chunk},
		{StateEmbedding, r.embed},
		{StateStoring, r.persist},
		{StateFinalizing, r.finalize},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := transition(&r.state, s.state); err != nil {
			return err
		}
		r.logger.Debug("entering stage", "state", s.state)
		if err := s.fn(ctx); err != nil {
			return err
		}
		if r.duplicate {
			// duplicate deliveries end without running the remaining stages
			r.state = StateCompleted
			return nil
		}
	}
	return transition(&r.state, StateCompleted)
}

// startJob records the running job. Failure here is logged, not fatal.
func (r *run) startJob(ctx context.Context) {
	if _, err := r.store.StartJob(ctx, r.req.TaskID, r.req.DocumentID, r.start); err != nil {
		r.logger.Warn("failed to create processing job", "error", err)
		return
	}
	r.jobStarted = true
	r.logger.Debug("created processing job")
}

func (r *run) validate(ctx context.Context) error {
	if r.req.DocumentID == "" {
		return fmt.Errorf("%w: document id is empty", core.ErrValidation)
	}
	doc, err := r.store.GetDocument(ctx, r.req.DocumentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: document not found: %s", core.ErrValidation, r.req.DocumentID)
		}
		return fmt.Errorf("%w: load document: %w", core.ErrStorage, err)
	}
	r.doc = doc

	if doc.Status.Terminal() {
		return r.completeDuplicate(ctx)
	}

	if r.req.FilePath == "" {
		r.req.FilePath = doc.FilePath
	}
	if r.req.OwnerID == "" {
		r.req.OwnerID = doc.OwnerID
	}
	path := r.req.FilePath
	if path == "" {
		return fmt.Errorf("%w: file path is empty", core.ErrValidation)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: file not found: %s", core.ErrValidation, path)
	case err != nil:
		return fmt.Errorf("%w: stat %s: %w", core.ErrValidation, path, err)
	case !info.Mode().IsRegular():
		return fmt.Errorf("%w: path is not a file: %s", core.ErrValidation, path)
	case info.Size() == 0:
		return fmt.Errorf("%w: file is empty: %s", core.ErrValidation, path)
	case info.Size() > r.p.maxFileSize:
		return fmt.Errorf("%w: file too large: %d bytes (limit %d)", core.ErrValidation, info.Size(), r.p.maxFileSize)
	}

	r.stats[core.StatFileSize] = info.Size()
	r.logger.Info("validation passed", "file", filepath.Base(path), "size", info.Size())
	return nil
}

// completeDuplicate closes the job of a redelivered, already terminal document.
func (r *run) completeDuplicate(ctx context.Context) error {
	r.duplicate = true
	r.stats[core.StatDuplicateDelivery] = true
	r.logger.Warn("document already processed, skipping duplicate delivery", "status", r.doc.Status)

	r.stats[core.StatProcessingTime] = r.p.now().Sub(r.start).Seconds()
	if r.jobStarted {
		if err := r.store.CompleteJob(ctx, r.req.TaskID, r.stats.Clone(), r.p.now()); err != nil {
			return fmt.Errorf("%w: complete job: %w", core.ErrStorage, err)
		}
	}
	return nil
}

func (r *run) extract(ctx context.Context) error {
	path := r.req.FilePath
	content, err := r.p.extractor.Extract(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, core.ErrExtraction) || errors.Is(err, core.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrExtraction, err)
	}
	r.content = content

	text := r.p.sanitizer.Sanitize(content.Text)
	if before, after := utf8.RuneCountInString(content.Text), utf8.RuneCountInString(text); before != after {
		r.logger.Info("text sanitized", "before", before, "after", after)
	}
	if core.IsBlank(text) {
		return r.noTextError(path)
	}
	r.text = text

	pages := content.Metadata.PageCount
	if pages == 0 {
		pages = len(content.Pages)
	}
	r.stats[core.StatExtractionMethod] = content.ExtractionMethod
	r.stats[core.StatTextLength] = utf8.RuneCountInString(text)
	r.stats[core.StatPageCount] = pages
	r.stats[core.StatWordCount] = core.WordCount(text)

	r.logger.Info("extracted text",
		"method", content.ExtractionMethod,
		"words", r.stats[core.StatWordCount],
		"pages", pages)
	return nil
}

func (r *run) noTextError(path string) error {
	size, _ := r.stats[core.StatFileSize].(int64)
	if strings.EqualFold(filepath.Ext(path), ".pdf") || r.content.Metadata.MimeType == "application/pdf" {
		if r.content.OCRAttempted {
			return fmt.Errorf("%w from PDF: OCR was enabled but failed to extract readable text; the file may be corrupted, password-protected or contain unscannable content (file size: %d bytes)", ErrNoText, size)
		}
		return fmt.Errorf("%w from PDF: the file has no text layer and OCR is not enabled; it may be scanned, corrupted or password-protected (file size: %d bytes)", ErrNoText, size)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = "unknown"
	}
	return fmt.Errorf("%w from %s file: the file may be empty, binary or corrupted (file size: %d bytes)", ErrNoText, ext, size)
}

func (r *run) chunk(ctx context.Context) error {
	res := r.p.chunker.Chunk(r.text)
	if res.Degraded {
		r.logger.Warn("structural chunking failed, used fixed-size fallback", "error", res.Err)
	}

	pieces := make([]string, 0, len(res.Chunks))
	for i, c := range res.Chunks {
		clean := r.p.sanitizer.Sanitize(c)
		if core.IsBlank(clean) {
			r.logger.Warn("chunk empty after sanitization, skipping", "chunk", i)
			continue
		}
		pieces = append(pieces, clean)
	}

	r.stats[core.StatChunkCount] = len(pieces)
	r.stats[core.StatOriginalChunkCount] = len(res.Chunks)
	r.stats[core.StatChunkingStrategy] = string(res.Strategy)
	if r.p.tokens != nil {
		r.stats[core.StatTokenCount] = r.p.tokens.CountAll(pieces)
	}

	if len(pieces) == 0 {
		return core.ErrNoChunks
	}
	r.pieces = pieces
	r.logger.Info("generated chunks", "chunks", len(pieces), "strategy", res.Strategy)
	return nil
}

func (r *run) embed(ctx context.Context) error {
	res, err := r.p.embedder.Embed(ctx, r.pieces)
	if err != nil {
		return err
	}
	vectors := res.Vectors
	if len(vectors) != len(r.pieces) {
		return fmt.Errorf("embedding count mismatch: %d != %d", len(vectors), len(r.pieces))
	}
	r.vectors = vectors
	r.available = !res.Degraded

	dim := r.p.embedder.Dimension()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	r.stats[core.StatEmbeddingCount] = len(vectors)
	r.stats[core.StatEmbeddingDimension] = dim
	r.stats[core.StatEmbeddingAvailable] = r.available

	if !r.available {
		r.logger.Warn("encoder unavailable, stored placeholder vectors", "count", len(vectors))
	}
	return nil
}

func (r *run) persist(ctx context.Context) error {
	chunks := r.buildChunks()

	n, err := r.store.ReplaceChunks(ctx, r.req.DocumentID, chunks)
	if err != nil {
		return fmt.Errorf("%w: store chunks: %w", core.ErrStorage, err)
	}
	r.stored = n
	r.stats[core.StatChunksStored] = n

	vectors, err := r.storeVectors(ctx, chunks)
	if err != nil {
		r.logger.Warn("vector store write failed, continuing without vectors", "error", err)
	}
	r.stats[core.StatVectorsStored] = vectors

	r.logger.Info("stored chunks", "chunks", n, "vectors", vectors)
	return nil
}

func (r *run) buildChunks() []*core.Chunk {
	locate := newPageLocator(r.content.Pages, r.p.sanitizer.Sanitize)
	now := r.p.now()
	chunks := make([]*core.Chunk, len(r.pieces))
	for i, text := range r.pieces {
		metadata := map[string]string{
			"length":     strconv.Itoa(utf8.RuneCountInString(text)),
			"word_count": strconv.Itoa(core.WordCount(text)),
			"created_at": now.Format(time.RFC3339),
		}
		if r.p.tokens != nil {
			metadata["token_count"] = strconv.Itoa(r.p.tokens.Count(text))
		}
		chunks[i] = &core.Chunk{
			DocumentID: r.req.DocumentID,
			Index:      i,
			Content:    text,
			PageNumber: locate(text),
			Embedding:  r.vectors[i],
			Metadata:   metadata,
			CreatedAt:  now,
		}
	}
	return chunks
}

// storeVectors writes vector records through a run-scoped session. Errors
// are returned for the caller to log; they never fail the run.
func (r *run) storeVectors(ctx context.Context, chunks []*core.Chunk) (int, error) {
	if r.p.vectors == nil {
		return 0, nil
	}
	if !r.available {
		r.logger.Info("skipping vector store for placeholder vectors")
		return 0, nil
	}

	vs, err := r.p.vectors.OpenVectors(ctx)
	if err != nil {
		return 0, fmt.Errorf("open vector store: %w", err)
	}
	defer func() {
		if err := vs.Close(); err != nil {
			r.logger.Warn("failed to close vector store", "error", err)
		}
	}()

	if err := vs.DeleteDocument(ctx, r.req.DocumentID); err != nil {
		return 0, fmt.Errorf("delete previous vectors: %w", err)
	}

	source := filepath.Base(r.req.FilePath)
	if r.doc.Filename != "" {
		source = r.doc.Filename
	}
	pages := statInt(r.stats, core.StatPageCount)

	records := make([]*core.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = &core.VectorRecord{
			ID:         core.VectorRecordID(c.DocumentID, c.Index),
			DocumentID: c.DocumentID,
			OwnerID:    r.req.OwnerID,
			ChunkIndex: c.Index,
			SourceFile: source,
			PageCount:  pages,
			Content:    c.Content,
			Embedding:  c.Embedding,
		}
	}
	if err := vs.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}
	return len(records), nil
}

func (r *run) finalize(ctx context.Context) error {
	now := r.p.now()
	stats := core.DocumentStats{
		PageCount:        statInt(r.stats, core.StatPageCount),
		WordCount:        statInt(r.stats, core.StatWordCount),
		TextLength:       statInt(r.stats, core.StatTextLength),
		ExtractionMethod: r.content.ExtractionMethod,
	}
	changed, err := r.store.CompleteDocument(ctx, r.req.DocumentID, stats, now)
	if err != nil {
		return fmt.Errorf("%w: complete document: %w", core.ErrStorage, err)
	}
	if !changed {
		r.logger.Warn("document no longer processing, status left unchanged")
	}

	r.stats[core.StatProcessingTime] = now.Sub(r.start).Seconds()
	if r.jobStarted {
		if err := r.store.CompleteJob(ctx, r.req.TaskID, r.stats.Clone(), now); err != nil {
			return fmt.Errorf("%w: complete job: %w", core.ErrStorage, err)
		}
	}

	r.removeInput()
	r.logger.Info("document processed successfully", "seconds", r.stats[core.StatProcessingTime])
	return nil
}

// fail is the failure handler. It records the error on the job, fails the
// document when no retry will follow and cleans up. A cancelled context
// means the run was abandoned; the document is then left for the sweeper.
func (r *run) fail(ctx context.Context, err error) *RunResult {
	if !r.state.Terminal() {
		_ = transition(&r.state, StateFailed)
	}

	now := r.p.now()
	final := !Retryable(err) || r.req.lastAttempt()
	abandoned := ctx.Err() != nil

	r.stats[core.StatErrorType] = core.ErrorType(err)
	r.stats[core.StatProcessingTime] = now.Sub(r.start).Seconds()
	r.logger.Error("document processing failed",
		"error", err,
		"error_type", r.stats[core.StatErrorType],
		"final", final)

	switch {
	case abandoned:
		r.logger.Warn("run abandoned, leaving document for recovery")
	case r.store != nil:
		if r.jobStarted {
			if jobErr := r.store.FailJob(ctx, r.req.TaskID, err.Error(), r.stats.Clone(), now); jobErr != nil {
				r.logger.Error("failed to record job failure", "error", jobErr)
			}
		}
		if final && r.doc != nil {
			changed, docErr := r.store.FailDocument(ctx, r.req.DocumentID, now)
			switch {
			case docErr != nil:
				r.logger.Error("failed to record document failure", "error", docErr)
			case !changed:
				r.logger.Warn("document no longer processing, status left unchanged")
			}
		}
	}

	if final {
		r.removeInput()
	}

	res := r.result()
	res.Status = core.JobFailed
	res.Error = err.Error()
	res.ErrorType = core.ErrorType(err)
	res.Final = final
	res.Err = err
	return res
}

func (r *run) result() *RunResult {
	return &RunResult{
		DocumentID:     r.req.DocumentID,
		TaskID:         r.req.TaskID,
		OwnerID:        r.req.OwnerID,
		Status:         core.JobCompleted,
		State:          r.state,
		Stats:          r.stats.Clone(),
		ChunkCount:     r.stored,
		Duplicate:      r.duplicate,
		ProcessingTime: r.p.now().Sub(r.start),
	}
}

// removeInput deletes the input file. Errors are logged only.
func (r *run) removeInput() {
	if !r.p.removeInput || r.req.FilePath == "" {
		return
	}
	if err := os.Remove(r.req.FilePath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove input file", "file", r.req.FilePath, "error", err)
		}
		return
	}
	r.logger.Info("removed input file", "file", r.req.FilePath)
}

func (r *run) close() {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close store session", "error", err)
	}
}

func statInt(stats core.Stats, key string) int {
	n, _ := stats[key].(int)
	return n
}
