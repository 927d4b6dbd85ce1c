package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/poiesic/thinkdocs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	name  string
	out   *PDFText
	err   error
	calls int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) ExtractText(ctx context.Context, path string) (*PDFText, error) {
	f.calls++
	return f.out, f.err
}

type fakeRenderer struct {
	pages int
	err   error
}

func (f *fakeRenderer) RenderPages(ctx context.Context, path string, fn func(int, image.Image) error) error {
	if f.err != nil {
		return f.err
	}
	for i := 1; i <= f.pages; i++ {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		img.SetGray(1, 1, color.Gray{Y: 200})
		if err := fn(i, img); err != nil {
			return err
		}
	}
	return nil
}

// sparseRenderer renders only the listed page numbers, like a renderer that
// finds no image on the others.
type sparseRenderer struct {
	pages []int
}

func (s *sparseRenderer) RenderPages(ctx context.Context, path string, fn func(int, image.Image) error) error {
	for _, page := range s.pages {
		if err := fn(page, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
			return err
		}
	}
	return nil
}

type fakeRecognizer struct {
	text    string
	failOn  int
	blankOn int
	calls   int
	closed  bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	f.calls++
	if f.calls == f.failOn {
		return "", errors.New("unreadable page")
	}
	if f.calls == f.blankOn {
		return "  \n", nil
	}
	return f.text, nil
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

var scannedText = strings.Repeat("Recognized scanned words on this page. ", 5)

func newFakeOCR(t *testing.T, rec *fakeRecognizer, pages int) *OCR {
	t.Helper()
	ocr, err := NewOCR(&fakeRenderer{pages: pages}, rec, nil)
	require.NoError(t, err)
	return ocr
}

func TestPDFExtractor_FirstNonEmptyEngineWins(t *testing.T) {
	broken := &fakeEngine{name: "first", err: errors.New("bad xref")}
	good := &fakeEngine{name: "second", out: &PDFText{Text: strings.Repeat("Good text layer. ", 20), PageCount: 3, Title: " Report "}}
	unused := &fakeEngine{name: "third", out: &PDFText{Text: "never"}}

	p := NewPDFExtractor(WithEngines(broken, good, unused))
	content, err := p.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, "second", content.ExtractionMethod)
	assert.Equal(t, 3, content.Metadata.PageCount)
	assert.Equal(t, "Report", content.Metadata.Title)
	assert.Equal(t, 0, unused.calls)
}

func TestPDFExtractor_AllEnginesFail(t *testing.T) {
	p := NewPDFExtractor(WithEngines(
		&fakeEngine{name: "a", err: errors.New("encrypted")},
		&fakeEngine{name: "b", err: errors.New("not a pdf")},
	))
	_, err := p.Extract(context.Background(), "doc.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExtraction)
	assert.Contains(t, err.Error(), "a: encrypted")
	assert.Contains(t, err.Error(), "b: not a pdf")
}

func TestPDFExtractor_ScannedPDFUsesOCR(t *testing.T) {
	rec := &fakeRecognizer{text: scannedText}
	empty := &fakeEngine{name: "PDFReader", out: &PDFText{Text: "  \n ", PageCount: 2}}
	other := &fakeEngine{name: "Poppler", out: &PDFText{Text: ""}}

	p := NewPDFExtractor(WithEngines(empty, other), WithOCR(newFakeOCR(t, rec, 2)))
	require.True(t, p.OCREnabled())

	content, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, "PDFReader"+OCRMarker, content.ExtractionMethod)
	assert.Contains(t, content.ExtractionMethod, "OCR")
	assert.Contains(t, content.Text, "Recognized scanned words")
	assert.Len(t, content.Pages, 2)
	assert.Equal(t, 2, rec.calls)
	assert.True(t, content.OCRAttempted)
}

func TestPDFExtractor_OCRPageFailureKeepsPosition(t *testing.T) {
	rec := &fakeRecognizer{text: scannedText, failOn: 1}
	p := NewPDFExtractor(
		WithEngines(&fakeEngine{name: "PDFReader", out: &PDFText{PageCount: 2}}),
		WithOCR(newFakeOCR(t, rec, 2)),
	)

	content, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	require.Len(t, content.Pages, 2)
	assert.Empty(t, content.Pages[0])
	assert.Equal(t, scannedText, content.Pages[1])
	assert.True(t, strings.HasSuffix(content.ExtractionMethod, OCRMarker))
}

func TestOCR_BlankPagesKeepPosition(t *testing.T) {
	rec := &fakeRecognizer{text: scannedText, blankOn: 2}
	pages, err := newFakeOCR(t, rec, 3).ExtractPages(context.Background(), "scan.pdf")
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Equal(t, scannedText, pages[0])
	assert.Empty(t, pages[1])
	assert.Equal(t, scannedText, pages[2])
}

func TestOCR_SkippedPagesArePadded(t *testing.T) {
	rec := &fakeRecognizer{text: scannedText}
	ocr, err := NewOCR(&sparseRenderer{pages: []int{1, 3}}, rec, nil)
	require.NoError(t, err)

	pages, err := ocr.ExtractPages(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{scannedText, "", scannedText}, pages)
}

func TestPDFExtractor_NoOCRAttemptForGoodText(t *testing.T) {
	rec := &fakeRecognizer{text: scannedText}
	good := &fakeEngine{name: "PDFReader", out: &PDFText{Text: strings.Repeat("Good text layer. ", 20), PageCount: 1}}
	p := NewPDFExtractor(WithEngines(good), WithOCR(newFakeOCR(t, rec, 1)))

	content, err := p.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.False(t, content.OCRAttempted)
	assert.Equal(t, 0, rec.calls)
}

func TestPDFExtractor_OCRDoesNotReplaceLongerText(t *testing.T) {
	// enough text, but mostly symbols, so OCR is attempted
	noisy := strings.Repeat("#@!$%^&*() ", 30)
	rec := &fakeRecognizer{text: "short"}
	p := NewPDFExtractor(
		WithEngines(&fakeEngine{name: "PDFReader", out: &PDFText{Text: noisy, PageCount: 1}}),
		WithOCR(newFakeOCR(t, rec, 1)),
	)

	content, err := p.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "PDFReader", content.ExtractionMethod)
	assert.Equal(t, noisy, content.Text)
}

func TestPDFExtractor_OCRDisabled(t *testing.T) {
	p := NewPDFExtractor(WithEngines(&fakeEngine{name: "PDFReader", out: &PDFText{PageCount: 1}}))
	content, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.False(t, p.OCREnabled())
	assert.Equal(t, "PDFReader", content.ExtractionMethod)
	assert.Empty(t, strings.TrimSpace(content.Text))
}

func TestPDFExtractor_OCRRendererFailureIsSoft(t *testing.T) {
	ocr, err := NewOCR(&fakeRenderer{err: errors.New("pdftoppm missing")}, &fakeRecognizer{}, nil)
	require.NoError(t, err)
	p := NewPDFExtractor(
		WithEngines(&fakeEngine{name: "PDFReader", out: &PDFText{PageCount: 1}}),
		WithOCR(ocr),
	)

	content, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "PDFReader", content.ExtractionMethod)
}

func TestPDFExtractor_CanExtract(t *testing.T) {
	p := NewPDFExtractor()
	assert.True(t, p.CanExtract("a.PDF", ""))
	assert.True(t, p.CanExtract("", "application/pdf"))
	assert.False(t, p.CanExtract("a.txt", "text/plain"))
}

func TestRegistry_ScannedPDFEndToEnd(t *testing.T) {
	path := writeFile(t, "scan.pdf", []byte("%PDF-1.4 fake"))
	rec := &fakeRecognizer{text: scannedText}
	pdf := NewPDFExtractor(
		WithEngines(&fakeEngine{name: "PDFReader", out: &PDFText{PageCount: 1}}),
		WithOCR(newFakeOCR(t, rec, 1)),
	)
	r := NewRegistry([]Extractor{pdf, NewTextExtractor()})

	content, err := r.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(content.Text))
	assert.Contains(t, content.ExtractionMethod, "OCR")
	assert.Equal(t, core.WordCount(content.Text), content.Metadata.WordCount)
}

func TestNewOCR_RequiresParts(t *testing.T) {
	_, err := NewOCR(nil, &fakeRecognizer{}, nil)
	assert.ErrorIs(t, err, ErrOCRUnavailable)
	_, err = NewOCR(&fakeRenderer{}, nil, nil)
	assert.ErrorIs(t, err, ErrOCRUnavailable)
}
