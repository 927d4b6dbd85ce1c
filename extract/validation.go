package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/poiesic/thinkdocs/core"
)

var (
	multiSpace = regexp.MustCompile(`[ \t\f\v]+`)
	multiBlank = regexp.MustCompile(`\n{3,}`)
)

// ExtractWithValidation checks path, runs e and fills the metadata common
// to every format. Engine errors that are not already classified are
// wrapped in core.ErrExtraction.
func ExtractWithValidation(ctx context.Context, e Extractor, path string) (*core.ExtractedContent, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: file not found: %s", core.ErrValidation, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", core.ErrValidation, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: path is not a file: %s", core.ErrValidation, path)
	}

	content, err := e.Extract(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrExtraction) || errors.Is(err, core.ErrValidation) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s failed on %s: %w", core.ErrExtraction, e.Name(), filepath.Base(path), err)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: %s returned no content", core.ErrExtraction, e.Name())
	}

	md := &content.Metadata
	md.Filename = filepath.Base(path)
	md.FileSize = info.Size()
	md.ModifiedAt = info.ModTime()
	if md.CreatedAt.IsZero() {
		md.CreatedAt = info.ModTime()
	}
	if md.MimeType == "" {
		md.MimeType = DetectMimeType(path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		md.SourcePath = abs
	} else {
		md.SourcePath = path
	}
	if md.Checksum == "" {
		if f, err := os.Open(path); err == nil {
			md.Checksum, _ = core.ChecksumReader(f)
			f.Close()
		}
	}

	content.Text = CleanText(content.Text)
	md.WordCount = core.WordCount(content.Text)
	if md.PageCount == 0 && len(content.Pages) > 0 {
		md.PageCount = len(content.Pages)
	}
	return content, nil
}

// CleanText trims lines, collapses runs of horizontal whitespace and keeps
// at most one blank line between paragraphs.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpace.ReplaceAllString(line, " "))
	}
	text = multiBlank.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
