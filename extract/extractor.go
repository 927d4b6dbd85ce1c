package extract

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/thinkdocs/core"
)

// Extractor pulls text and metadata out of a single file format.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// CanExtract reports whether the extractor handles a file with the given
	// path or MIME type. Either argument may be empty.
	CanExtract(path, mimeType string) bool

	// Extract reads path and returns its text. Errors should wrap
	// core.ErrExtraction or core.ErrValidation.
	Extract(ctx context.Context, path string) (*core.ExtractedContent, error)
}

// Registry dispatches files to extractors.
type Registry struct {
	extractors []Extractor
	logger     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets a custom logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry. Extractors are consulted in order.
func NewRegistry(extractors []Extractor, opts ...RegistryOption) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "extractor_registry")
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register appends an extractor.
func (r *Registry) Register(e Extractor) {
	if e != nil {
		r.extractors = append(r.extractors, e)
	}
}

// Find returns the first extractor accepting path by extension, then the
// first accepting mimeType. It returns core.ErrUnsupportedFormat when none does.
func (r *Registry) Find(path, mimeType string) (Extractor, error) {
	for _, e := range r.extractors {
		if e.CanExtract(path, "") {
			return e, nil
		}
	}
	if mimeType != "" {
		for _, e := range r.extractors {
			if e.CanExtract("", mimeType) {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s (mime %q)", core.ErrUnsupportedFormat, filepath.Base(path), mimeType)
}

// Extract finds an extractor for path and runs it with validation.
func (r *Registry) Extract(ctx context.Context, path string) (*core.ExtractedContent, error) {
	mimeType := DetectMimeType(path)
	e, err := r.Find(path, mimeType)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("dispatching file", "file", filepath.Base(path), "extractor", e.Name(), "mime", mimeType)
	return ExtractWithValidation(ctx, e, path)
}

// DetectMimeType guesses a MIME type from the extension, then from content.
// It returns "application/octet-stream" when nothing matches.
func DetectMimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}

	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return "application/octet-stream"
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(buf[:n]))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// hasExtension reports whether path ends with one of exts (lower case, with dot).
func hasExtension(path string, exts []string) bool {
	if path == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
