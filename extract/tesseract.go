//go:build ocr

package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer recognizes page images with tesseract through gosseract.
// A single client is shared, so calls are serialized.
type TesseractRecognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
}

var _ Recognizer = (*TesseractRecognizer)(nil)

// NewTesseractRecognizer creates a recognizer for the given tesseract languages.
func NewTesseractRecognizer(languages ...string) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: %w", ErrOCRUnavailable, err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO_OSD); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrOCRUnavailable, err)
	}
	return &TesseractRecognizer{client: client}, nil
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", err
	}
	return t.client.Text()
}

func (t *TesseractRecognizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
