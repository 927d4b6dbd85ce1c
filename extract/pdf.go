package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/thinkdocs/core"
)

var pdfExtensions = []string{".pdf"}

// PDFExtractor tries ranked text engines and falls back to OCR when the
// resulting text layer is missing or noisy.
type PDFExtractor struct {
	engines      []PDFEngine
	ocr          *OCR
	ocrThreshold float64
	logger       *slog.Logger
}

// PDFOption configures a PDFExtractor.
type PDFOption func(*PDFExtractor)

// WithEngines replaces the engine ranking.
func WithEngines(engines ...PDFEngine) PDFOption {
	return func(p *PDFExtractor) {
		p.engines = engines
	}
}

// WithOCR enables OCR. A nil value disables it.
func WithOCR(ocr *OCR) PDFOption {
	return func(p *PDFExtractor) {
		p.ocr = ocr
	}
}

// WithOCRThreshold sets the text quality ratio below which OCR is attempted.
func WithOCRThreshold(threshold float64) PDFOption {
	return func(p *PDFExtractor) {
		if threshold > 0 && threshold <= 1 {
			p.ocrThreshold = threshold
		}
	}
}

// WithPDFLogger sets a custom logger.
func WithPDFLogger(logger *slog.Logger) PDFOption {
	return func(p *PDFExtractor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// DefaultEngines returns the engines in rank order.
func DefaultEngines() []PDFEngine {
	return []PDFEngine{NewPDFReaderEngine(), NewPopplerEngine(), NewPdfcpuEngine()}
}

// NewPDFExtractor creates a PDF extractor with the default engines and OCR disabled.
func NewPDFExtractor(opts ...PDFOption) *PDFExtractor {
	p := &PDFExtractor{
		engines:      DefaultEngines(),
		ocrThreshold: DefaultOCRThreshold,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pdf_extractor")
	return p
}

var _ Extractor = (*PDFExtractor)(nil)

func (p *PDFExtractor) Name() string { return "pdf_extractor" }

func (p *PDFExtractor) CanExtract(path, mimeType string) bool {
	return hasExtension(path, pdfExtensions) || mimeType == "application/pdf"
}

// OCREnabled reports whether an OCR fallback is configured.
func (p *PDFExtractor) OCREnabled() bool {
	return p.ocr != nil
}

func (p *PDFExtractor) Extract(ctx context.Context, path string) (*core.ExtractedContent, error) {
	result, method, err := p.runEngines(ctx, path)
	if err != nil {
		return nil, err
	}

	if result.PageCount == 0 {
		result.PageCount = pageCount(path)
	}

	text := result.Text
	pages := result.Pages
	confidence := 1.0
	ocrAttempted := false

	if p.ocr != nil && NeedsOCR(text, p.ocrThreshold) {
		ocrAttempted = true
		p.logger.Info("text layer weak, enhancing with OCR", "file", path, "chars", utf8.RuneCountInString(strings.TrimSpace(text)))
		ocrPages, err := p.ocr.ExtractPages(ctx, path)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			p.logger.Warn("OCR failed", "file", path, "error", err)
		default:
			ocrText := strings.Join(ocrPages, "\n")
			if utf8.RuneCountInString(ocrText) > utf8.RuneCountInString(text) {
				text = ocrText
				pages = ocrPages
				method += OCRMarker
				confidence = 0.5
			}
		}
	}

	p.logger.Info("PDF extraction completed", "file", path, "method", method, "pages", result.PageCount)

	return &core.ExtractedContent{
		Text:             text,
		Pages:            pages,
		ExtractionMethod: method,
		Confidence:       confidence,
		OCRAttempted:     ocrAttempted,
		Metadata: core.DocumentMetadata{
			MimeType:  "application/pdf",
			PageCount: result.PageCount,
			Title:     strings.TrimSpace(result.Title),
			Author:    strings.TrimSpace(result.Author),
			Subject:   strings.TrimSpace(result.Subject),
		},
	}, nil
}

// runEngines returns the first non-empty engine result. If engines succeed
// but find no text, the first such result is returned so OCR can try.
func (p *PDFExtractor) runEngines(ctx context.Context, path string) (*PDFText, string, error) {
	var errs []error
	var empty *PDFText
	var emptyMethod string

	for _, engine := range p.engines {
		res, err := engine.ExtractText(ctx, path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		if err != nil {
			p.logger.Warn("PDF engine failed", "engine", engine.Name(), "file", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
			continue
		}
		if res == nil || strings.TrimSpace(res.Text) == "" {
			p.logger.Debug("PDF engine found no text", "engine", engine.Name(), "file", path)
			if empty == nil && res != nil {
				empty, emptyMethod = res, engine.Name()
			}
			continue
		}
		return res, engine.Name(), nil
	}

	if empty != nil {
		return empty, emptyMethod, nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no PDF engines configured"))
	}
	return nil, "", fmt.Errorf("%w: all PDF engines failed: %w", core.ErrExtraction, errors.Join(errs...))
}
