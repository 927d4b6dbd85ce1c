package sanitize

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_RemovesNulAndReplacement(t *testing.T) {
	got := Text("he\x00llo\ufffd world")
	assert.Equal(t, "hello world", got)
}

func TestText_RemovesBidiOverrides(t *testing.T) {
	got := Text("file.\u202etxt.exe\u200e\u200f\u202d")
	assert.Equal(t, "file.txt.exe", got)
}

func TestText_RemovesControlCharactersKeepsWhitespace(t *testing.T) {
	got := Text("a\x01b\x08c\x0bd\x0ce\x1ff\x7fg\u0085h\ti\nj\rk")
	assert.Equal(t, "abcdefgh\ti\nj\rk", got)
}

func TestText_NormalizesToNFC(t *testing.T) {
	decomposed := "cafe\u0301"
	assert.Equal(t, "caf\u00e9", Text(decomposed))
}

func TestText_DropsInvalidUTF8(t *testing.T) {
	got := Text("ok\xff\xfeyes")
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "okyes", got)
}

func TestText_CategoryFilterOnlyAboveThreshold(t *testing.T) {
	short := "emoji \U0001F600 stays"
	assert.Equal(t, short, Text(short), "short text keeps symbols outside the allow-list")

	long := strings.Repeat("word ", 300) + "\U0001F600 \u00a9 end"
	got := Text(long)
	assert.NotContains(t, got, "\U0001F600")
	assert.NotContains(t, got, "\u00a9")
	assert.True(t, strings.HasSuffix(got, "  end"))
}

func TestSanitizer_Truncates(t *testing.T) {
	s := New(WithMaxLength(100), WithCategoryThreshold(1_000_000))
	got := s.Sanitize(strings.Repeat("a", 500))

	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.Equal(t, got, s.Sanitize(got), "truncated output must be stable")
}

func TestText_Empty(t *testing.T) {
	assert.Equal(t, "", Text(""))
	assert.Equal(t, "", Text("\x00\ufffd\u202e"))
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"he\x00llo\ufffd",
		"cafe\u0301 na\u0131ve A\u030a",
		"\u202eevil\u202d",
		"bad\xffbytes\xc3",
		"tabs\tand\r\nnewlines\n\n",
		strings.Repeat("long text with symbols \u00a9\U0001F600 ", 80),
		strings.Repeat("e\u0301", 600),
		"\x7f\x1b[31mred\x1b[0m",
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := rng.Intn(1500)
		var b strings.Builder
		for j := 0; j < n; j++ {
			switch rng.Intn(6) {
			case 0:
				b.WriteByte(byte(rng.Intn(256)))
			case 1:
				b.WriteRune(rune(rng.Intn(0x3000)))
			case 2:
				b.WriteRune(0x300 + rune(rng.Intn(0x70)))
			default:
				b.WriteByte(byte('a' + rng.Intn(26)))
			}
		}
		inputs = append(inputs, b.String())
	}

	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		require.Equal(t, once, twice, "sanitize must be idempotent for %q", in)
		require.NotContains(t, once, "\x00")
		require.True(t, utf8.ValidString(once))
	}
}
