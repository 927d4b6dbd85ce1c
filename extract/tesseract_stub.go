//go:build !ocr

package extract

import (
	"context"
	"image"
)

// TesseractRecognizer is unavailable in builds without the "ocr" tag.
type TesseractRecognizer struct{}

var _ Recognizer = (*TesseractRecognizer)(nil)

// NewTesseractRecognizer always returns ErrOCRUnavailable; rebuild with -tags ocr.
func NewTesseractRecognizer(languages ...string) (*TesseractRecognizer, error) {
	return nil, ErrOCRUnavailable
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	return "", ErrOCRUnavailable
}

func (t *TesseractRecognizer) Close() error { return nil }
