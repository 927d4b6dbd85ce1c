package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/draw"
)

var (
	// ErrOCRUnavailable is returned when no renderer or recognizer is usable.
	ErrOCRUnavailable = errors.New("ocr unavailable")
)

const (
	// DefaultOCRThreshold is the alphanumeric-plus-space ratio below which text is considered garbled.
	DefaultOCRThreshold = 0.8

	// MinTextLength is the trimmed length below which a text layer is considered missing.
	MinTextLength = 100

	// OCRMarker is appended to the extraction method when OCR text wins.
	OCRMarker = " + OCR"
)

// NeedsOCR reports whether a text layer is too short or too noisy to trust.
func NeedsOCR(text string, threshold float64) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < MinTextLength {
		return true
	}

	total, good := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			good++
		}
	}
	if total == 0 {
		return false
	}
	return float64(good)/float64(total) < threshold
}

// PageRenderer rasterizes the pages of a PDF. fn is called once per page in order.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string, fn func(page int, img image.Image) error) error
}

// Recognizer turns a page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
	Close() error
}

// OCR renders, binarizes and recognizes every page of a PDF.
type OCR struct {
	renderer   PageRenderer
	recognizer Recognizer
	logger     *slog.Logger
}

// NewOCR creates an OCR pipeline.
func NewOCR(renderer PageRenderer, recognizer Recognizer, logger *slog.Logger) (*OCR, error) {
	if renderer == nil || recognizer == nil {
		return nil, ErrOCRUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCR{
		renderer:   renderer,
		recognizer: recognizer,
		logger:     logger.With("component", "ocr"),
	}, nil
}

// ExtractPages returns recognized text per page; pages[i] holds page i+1.
// Blank, skipped and failed pages are empty strings so positions keep
// matching the PDF's page numbers.
func (o *OCR) ExtractPages(ctx context.Context, path string) ([]string, error) {
	var pages []string
	err := o.renderer.RenderPages(ctx, path, func(page int, img image.Image) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if page < 1 {
			return fmt.Errorf("invalid page number %d", page)
		}
		for len(pages) < page {
			pages = append(pages, "")
		}
		text, err := o.recognizer.Recognize(ctx, Binarize(img))
		if err != nil {
			o.logger.Warn("OCR page failed", "page", page, "error", err)
			return nil
		}
		if strings.TrimSpace(text) != "" {
			pages[page-1] = text
		}
		return nil
	})
	return pages, err
}

// Close releases the recognizer.
func (o *OCR) Close() error {
	return o.recognizer.Close()
}

// Binarize converts img to black and white using Otsu's threshold.
func Binarize(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)

	var hist [256]int
	for _, v := range gray.Pix {
		hist[v]++
	}
	t := otsuThreshold(hist, len(gray.Pix))

	for i, v := range gray.Pix {
		if v > t {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}
	return gray
}

func otsuThreshold(hist [256]int, total int) uint8 {
	if total == 0 {
		return 127
	}
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var sumB, best float64
	var wB int
	threshold := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// PopplerRenderer rasterizes pages with poppler's pdftoppm at twice the PDF's
// native 72 dpi.
type PopplerRenderer struct {
	binary string
	dpi    int
}

// NewPopplerRenderer returns a renderer, or ErrOCRUnavailable when pdftoppm is not installed.
func NewPopplerRenderer() (*PopplerRenderer, error) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOCRUnavailable, err)
	}
	return &PopplerRenderer{binary: bin, dpi: 144}, nil
}

var pageSuffix = regexp.MustCompile(`-(\d+)\.png$`)

func (r *PopplerRenderer) RenderPages(ctx context.Context, path string, fn func(int, image.Image) error) error {
	tmp, err := os.MkdirTemp("", "thinkdocs-ocr-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	cmd := exec.CommandContext(ctx, r.binary, "-r", strconv.Itoa(r.dpi), "-gray", "-png", path, filepath.Join(tmp, "page"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	files, err := filepath.Glob(filepath.Join(tmp, "page-*.png"))
	if err != nil {
		return err
	}
	type pageFile struct {
		num  int
		path string
	}
	pages := make([]pageFile, 0, len(files))
	for _, f := range files {
		m := pageSuffix.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, pageFile{num: n, path: f})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	for _, p := range pages {
		img, err := decodeImage(p.path)
		if err != nil {
			return fmt.Errorf("page %d: %w", p.num, err)
		}
		if err := fn(p.num, img); err != nil {
			return err
		}
	}
	return nil
}

// PdfcpuImageRenderer uses the largest embedded image of each page, which is
// the whole page for typical scanner output, upscaled by Scale.
type PdfcpuImageRenderer struct {
	Scale int
}

func NewPdfcpuImageRenderer() *PdfcpuImageRenderer {
	return &PdfcpuImageRenderer{Scale: 2}
}

func (r *PdfcpuImageRenderer) RenderPages(ctx context.Context, path string, fn func(int, image.Image) error) error {
	n, err := api.PageCountFile(path)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "thinkdocs-img-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	for page := 1; page <= n; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := filepath.Join(tmp, strconv.Itoa(page))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := api.ExtractImagesFile(path, dir, []string{strconv.Itoa(page)}, relaxedConfig()); err != nil {
			continue
		}
		img := largestImage(dir)
		if img == nil {
			continue
		}
		if err := fn(page, upscale(img, r.Scale)); err != nil {
			return err
		}
	}
	return nil
}

func largestImage(dir string) image.Image {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var best image.Image
	bestArea := 0
	for _, entry := range entries {
		img, err := decodeImage(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if area := img.Bounds().Dx() * img.Bounds().Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}

func upscale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// TesseractLanguage maps a short language hint to a tesseract language code.
func TesseractLanguage(hint string) string {
	switch strings.ToLower(hint) {
	case "", "en", "eng":
		return "eng"
	case "de":
		return "deu"
	case "fr":
		return "fra"
	case "es":
		return "spa"
	case "it":
		return "ita"
	case "pt":
		return "por"
	case "nl":
		return "nld"
	}
	return hint
}
