package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/thinkdocs/core"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// MethodTextReader is the extraction_method recorded for text files.
const MethodTextReader = "text_reader"

var textExtensions = []string{".txt", ".md", ".text", ".markdown"}

// NamedEncoding pairs a decoder with a label for logs.
type NamedEncoding struct {
	Name     string
	Encoding encoding.Encoding
}

// DefaultFallbackEncodings are tried in order when a file is not valid UTF-8.
func DefaultFallbackEncodings() []NamedEncoding {
	return []NamedEncoding{
		{Name: "windows-1252", Encoding: charmap.Windows1252},
		{Name: "iso-8859-1", Encoding: charmap.ISO8859_1},
	}
}

// TextExtractor reads plain text and markdown files.
type TextExtractor struct {
	fallbacks []NamedEncoding
	logger    *slog.Logger
}

// TextOption configures a TextExtractor.
type TextOption func(*TextExtractor)

// WithFallbackEncodings replaces the fallback chain.
func WithFallbackEncodings(encs ...NamedEncoding) TextOption {
	return func(t *TextExtractor) {
		t.fallbacks = encs
	}
}

// WithTextLogger sets a custom logger.
func WithTextLogger(logger *slog.Logger) TextOption {
	return func(t *TextExtractor) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTextExtractor creates a text extractor.
func NewTextExtractor(opts ...TextOption) *TextExtractor {
	t := &TextExtractor{
		fallbacks: DefaultFallbackEncodings(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "text_extractor")
	return t
}

var _ Extractor = (*TextExtractor)(nil)

func (t *TextExtractor) Name() string { return "text_extractor" }

func (t *TextExtractor) CanExtract(path, mimeType string) bool {
	if hasExtension(path, textExtensions) {
		return true
	}
	return strings.HasPrefix(mimeType, "text/")
}

// Extract never fails on an encoding mismatch; undecodable bytes become U+FFFD.
func (t *TextExtractor) Extract(ctx context.Context, path string) (*core.ExtractedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read file content: %w", core.ErrExtraction, err)
	}

	text, used := t.decode(raw)
	if used != "utf-8" {
		t.logger.Info("decoded with fallback encoding", "file", path, "encoding", used)
	}

	return &core.ExtractedContent{
		Text:             text,
		Pages:            []string{text},
		ExtractionMethod: MethodTextReader,
		Confidence:       1.0,
		Metadata: core.DocumentMetadata{
			PageCount: 1,
		},
	}, nil
}

func (t *TextExtractor) decode(raw []byte) (string, string) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8"
	}

	for _, enc := range t.fallbacks {
		out, err := enc.Encoding.NewDecoder().Bytes(raw)
		if err != nil || !utf8.Valid(out) || strings.ContainsRune(string(out), utf8.RuneError) {
			continue
		}
		return string(out), enc.Name
	}

	t.logger.Warn("all encodings failed, replacing invalid bytes")
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), "utf-8-replace"
}
