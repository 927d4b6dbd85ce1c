package extract

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsOCR(t *testing.T) {
	assert.True(t, NeedsOCR("", DefaultOCRThreshold))
	assert.True(t, NeedsOCR("short text", DefaultOCRThreshold))
	assert.False(t, NeedsOCR(strings.Repeat("plain readable words ", 10), DefaultOCRThreshold))
	assert.True(t, NeedsOCR(strings.Repeat("a#$%^&*()! ", 20), DefaultOCRThreshold))
}

func TestBinarize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(200)
			if x < 2 {
				v = 50
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	out := Binarize(img)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := uint8(255)
			if x < 2 {
				want = 0
			}
			assert.Equal(t, want, out.GrayAt(x, y).Y, "pixel %d,%d", x, y)
		}
	}
}

func TestBinarize_ColorInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	img.Set(1, 0, color.RGBA{R: 240, G: 240, B: 240, A: 255})

	out := Binarize(img)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(1, 0).Y)
}

func TestUpscale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 5))
	assert.Equal(t, image.Rect(0, 0, 6, 10), upscale(img, 2).Bounds())
	assert.Equal(t, img, upscale(img, 1))
}

func TestContentStreamText(t *testing.T) {
	stream := []byte("BT /F1 12 Tf 72 712 Td (Hello) Tj 0 -14 Td [(Wor) -20 (ld)] TJ ET\n" +
		"% comment (ignored) Tj\n" +
		"BT (a\\(b\\)c \\101) Tj <0041> Tj ET")

	assert.Equal(t, "Hello\nWorld\na(b)c A", ContentStreamText(stream))
	assert.Equal(t, "", ContentStreamText(nil))
}

func TestTesseractLanguage(t *testing.T) {
	assert.Equal(t, "eng", TesseractLanguage("en"))
	assert.Equal(t, "eng", TesseractLanguage(""))
	assert.Equal(t, "deu", TesseractLanguage("DE"))
	assert.Equal(t, "jpn", TesseractLanguage("jpn"))
}
