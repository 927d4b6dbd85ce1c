package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFText is the raw output of one PDF engine.
type PDFText struct {
	Text      string
	Pages     []string
	PageCount int
	Title     string
	Author    string
	Subject   string
}

// PDFEngine extracts the text layer of a PDF.
type PDFEngine interface {
	Name() string
	ExtractText(ctx context.Context, path string) (*PDFText, error)
}

// relaxedConfig is the pdfcpu configuration used for reading untrusted files.
func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PDFReaderEngine reads text per page with github.com/ledongthuc/pdf.
type PDFReaderEngine struct{}

func NewPDFReaderEngine() *PDFReaderEngine { return &PDFReaderEngine{} }

func (e *PDFReaderEngine) Name() string { return "PDFReader" }

func (e *PDFReaderEngine) ExtractText(ctx context.Context, path string) (out *PDFText, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out = &PDFText{PageCount: r.NumPage()}
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			out.Pages = append(out.Pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		out.Pages = append(out.Pages, text)
	}
	out.Text = strings.Join(out.Pages, "\n\n")

	info := r.Trailer().Key("Info")
	out.Title = info.Key("Title").Text()
	out.Author = info.Key("Author").Text()
	out.Subject = info.Key("Subject").Text()
	return out, nil
}

// PopplerEngine converts through docconv, which shells out to poppler's pdftotext.
type PopplerEngine struct{}

func NewPopplerEngine() *PopplerEngine { return &PopplerEngine{} }

func (e *PopplerEngine) Name() string { return "Poppler" }

func (e *PopplerEngine) ExtractText(ctx context.Context, path string) (*PDFText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := docconv.Convert(f, "application/pdf", false)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &PDFText{
		Text:    res.Body,
		Title:   res.Meta["Title"],
		Author:  res.Meta["Author"],
		Subject: res.Meta["Subject"],
	}
	if pages, err := strconv.Atoi(strings.TrimSpace(res.Meta["Pages"])); err == nil {
		out.PageCount = pages
	}
	// pdftotext separates pages with form feeds
	if strings.Contains(res.Body, "\f") {
		out.Pages = strings.Split(strings.TrimRight(res.Body, "\f"), "\f")
		out.Text = strings.Join(out.Pages, "\n\n")
	}
	return out, nil
}

// PdfcpuEngine scrapes text operators from page content streams extracted by pdfcpu.
// It only recovers literal strings, so fonts with custom encodings come out garbled.
type PdfcpuEngine struct{}

func NewPdfcpuEngine() *PdfcpuEngine { return &PdfcpuEngine{} }

func (e *PdfcpuEngine) Name() string { return "pdfcpu" }

func (e *PdfcpuEngine) ExtractText(ctx context.Context, path string) (*PDFText, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "thinkdocs-content-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	out := &PDFText{PageCount: pageCount}
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(tmp, strconv.Itoa(i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if err := api.ExtractContentFile(path, dir, []string{strconv.Itoa(i)}, relaxedConfig()); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		content, err := readDir(dir)
		if err != nil {
			return nil, err
		}
		out.Pages = append(out.Pages, ContentStreamText(content))
	}
	out.Text = strings.Join(out.Pages, "\n\n")
	return out, nil
}

// readDir concatenates every regular file in dir in name order.
func readDir(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var buf bytes.Buffer
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(&buf, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ContentStreamText returns the literal strings shown by text operators in
// a PDF content stream. Line-moving operators start a new line.
func ContentStreamText(stream []byte) string {
	var out, line strings.Builder
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(s)
		}
		line.Reset()
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '(':
			s, next := readLiteral(stream, i)
			line.WriteString(s)
			i = next
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			// hex strings are usually glyph ids; skip them
			for i < len(stream) && stream[i] != '>' {
				i++
			}
			i++
		case isRegular(c):
			start := i
			for i < len(stream) && isRegular(stream[i]) {
				i++
			}
			switch string(stream[start:i]) {
			case "Td", "TD", "T*", "ET", "'", "\"":
				flush()
			case "Tj", "TJ":
				line.WriteByte(' ')
			}
		default:
			i++
		}
	}
	flush()
	return out.String()
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// readLiteral decodes a literal string starting at stream[start] == '('.
func readLiteral(stream []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(stream) {
		c := stream[i]
		switch {
		case c == '\\' && i+1 < len(stream):
			i++
			switch e := stream[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := 0
					n := 0
					for n < 3 && i < len(stream) && stream[i] >= '0' && stream[i] <= '7' {
						v = v*8 + int(stream[i]-'0')
						i++
						n++
					}
					i--
					b.WriteRune(rune(v & 0xff))
				} else {
					b.WriteByte(e)
				}
			}
		case c == '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		default:
			if c < 0x80 {
				b.WriteByte(c)
			} else {
				// PDFDocEncoding is close enough to Latin-1 for display text
				b.WriteRune(rune(c))
			}
		}
		i++
	}
	return b.String(), i
}

// pageCount asks pdfcpu for the page count, returning 0 on failure.
func pageCount(path string) int {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0
	}
	return n
}
