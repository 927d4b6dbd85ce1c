package chunking

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/thinkdocs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T) *Chunker {
	t.Helper()
	c, err := New(core.DefaultChunkingConfig())
	require.NoError(t, err)
	return c
}

// paragraphText builds paragraphs of unique lowercase words separated by blank lines.
func paragraphText(paragraphs, words int) (string, []string) {
	var all []string
	parts := make([]string, 0, paragraphs)
	for p := 0; p < paragraphs; p++ {
		ws := make([]string, 0, words)
		for i := 0; i < words; i++ {
			ws = append(ws, fmt.Sprintf("w%dx%d", p, i))
		}
		all = append(all, ws...)
		parts = append(parts, strings.Join(ws, " "))
	}
	return strings.Join(parts, "\n\n"), all
}

func assertCovered(t *testing.T, chunks []string, words []string) {
	t.Helper()
	seen := make(map[string]bool)
	for _, ch := range chunks {
		for _, w := range strings.Fields(ch) {
			seen[w] = true
		}
	}
	for _, w := range words {
		assert.True(t, seen[w], "word %q missing from chunks", w)
	}
}

func assertWellFormed(t *testing.T, chunks []string) {
	t.Helper()
	for i, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch), "chunk %d is blank", i)
		assert.Equal(t, strings.TrimSpace(ch), ch, "chunk %d is not trimmed", i)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(core.ChunkingConfig{ChunkSize: 100, Overlap: 200})
	assert.ErrorIs(t, err, core.ErrInvalidChunkingConfig)
}

func TestChunk_ShortTextBelowMinimum(t *testing.T) {
	c := newTestChunker(t)
	res := c.Chunk("Hello world. This is ThinkDocs.")

	assert.Empty(t, res.Chunks)
	assert.False(t, res.Degraded)
}

func TestChunk_EmptyAndWhitespace(t *testing.T) {
	c := newTestChunker(t)
	assert.Empty(t, c.Chunk("").Chunks)
	assert.Empty(t, c.Chunk(" \n\t \n").Chunks)
}

func TestChunk_ShortTextReturnedWhole(t *testing.T) {
	c := newTestChunker(t)
	text := strings.Repeat("alpha beta gamma delta ", 8)

	res := c.Chunk("  " + text + "\n\n")
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, strings.TrimSpace(text), res.Chunks[0])
	assert.Equal(t, StrategyWhole, res.Strategy)
}

func TestChunk_Paragraphs(t *testing.T) {
	c := newTestChunker(t)
	text, words := paragraphText(10, 30)

	res := c.Chunk(text)
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, StrategyParagraph, res.Strategy)
	assertWellFormed(t, res.Chunks)
	assertCovered(t, res.Chunks, words)

	for _, ch := range res.Chunks {
		assert.GreaterOrEqual(t, runeLen(ch), c.cfg.MinChunkSize)
	}
}

func TestChunk_Sections(t *testing.T) {
	c := newTestChunker(t)
	var b strings.Builder
	var words []string
	for s, title := range []string{"Intro", "Methods", "Results", "Discussion"} {
		body, _ := paragraphText(1, 45)
		body = strings.ReplaceAll(body, "w0x", fmt.Sprintf("s%dx", s))
		words = append(words, strings.Fields(body)...)
		if s > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# %s\n%s\n", title, body)
	}

	res := c.Chunk(b.String())
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, StrategySection, res.Strategy)
	assert.True(t, strings.HasPrefix(res.Chunks[0], "# Intro"))
	assertWellFormed(t, res.Chunks)
	assertCovered(t, res.Chunks, words)
}

func TestChunk_Sentences(t *testing.T) {
	c := newTestChunker(t)
	var sentences, words []string
	for i := 0; i < 40; i++ {
		ws := []string{fmt.Sprintf("Topic%d", i)}
		for j := 0; j < 7; j++ {
			ws = append(ws, fmt.Sprintf("s%dw%d", i, j))
		}
		words = append(words, ws...)
		sentences = append(sentences, strings.Join(ws, " ")+".")
	}

	res := c.Chunk(strings.Join(sentences, " "))
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, StrategySentence, res.Strategy)
	assertWellFormed(t, res.Chunks)

	// chunk boundaries fall between sentences
	for _, ch := range res.Chunks {
		assert.True(t, strings.HasSuffix(ch, "."), "chunk should end on a sentence: %q", ch)
	}

	seen := make(map[string]bool)
	for _, ch := range res.Chunks {
		for _, w := range strings.Fields(ch) {
			seen[strings.TrimSuffix(w, ".")] = true
		}
	}
	for _, w := range words {
		assert.True(t, seen[w], "word %q missing", w)
	}
}

func TestChunk_CharacterWindowsRespectWords(t *testing.T) {
	c := newTestChunker(t)
	var words []string
	for i := 0; i < 400; i++ {
		words = append(words, fmt.Sprintf("tok%d", i))
	}
	text := strings.Join(words, " ")

	res := c.Chunk(text)
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, StrategyCharacter, res.Strategy)
	assertWellFormed(t, res.Chunks)
	assertCovered(t, res.Chunks, words)

	known := make(map[string]bool, len(words))
	for _, w := range words {
		known[w] = true
	}
	for i, ch := range res.Chunks {
		assert.LessOrEqual(t, runeLen(ch), c.cfg.ChunkSize)
		for _, w := range strings.Fields(ch) {
			assert.True(t, known[w], "chunk %d contains a split word %q", i, w)
		}
	}

	// consecutive windows overlap
	for i := 1; i < len(res.Chunks); i++ {
		prev := strings.Fields(res.Chunks[i-1])
		assert.Contains(t, res.Chunks[i], prev[len(prev)-1])
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := newTestChunker(t)
	text, _ := paragraphText(12, 25)

	first := c.Chunk(text)
	second := c.Chunk(text)
	assert.Equal(t, first, second)
}

func TestChunk_DropsNonAlphanumeric(t *testing.T) {
	c := newTestChunker(t)
	res := c.Chunk(strings.Repeat("-- ** ## ", 200))
	assert.Empty(t, res.Chunks)
}

func TestChunk_FallbackOnPanic(t *testing.T) {
	c := newTestChunker(t)
	c.strategies = []strategy{{
		name:    StrategySection,
		split:   func(string) []string { panic("boom") },
		join:    " ",
		enabled: func(core.ChunkingConfig) bool { return true },
	}}

	text := strings.Repeat("abc ", 300)
	res := c.Chunk(text)

	assert.True(t, res.Degraded)
	assert.Equal(t, StrategyFallback, res.Strategy)
	assert.True(t, errors.Is(res.Err, core.ErrChunkingDegraded))
	require.Len(t, res.Chunks, 3)
	assertWellFormed(t, res.Chunks)
	for _, ch := range res.Chunks {
		assert.LessOrEqual(t, runeLen(ch), c.cfg.ChunkSize)
	}
}

func TestOverlapTail(t *testing.T) {
	cfg := core.DefaultChunkingConfig()
	cfg.Overlap = 30
	c, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, "Short tail.", c.overlapTail("Long first sentence goes here and on. Short tail."))
	assert.Equal(t, "tiny", c.overlapTail(" tiny "))
	words := "zzzz aaaa bbbb cccc dddd eeee ffff gggg hhhh iiii jjjj"
	assert.Equal(t, "eeee ffff gggg hhhh iiii jjjj", c.overlapTail(words))

	cfg.Overlap = 28
	c, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ffff gggg hhhh iiii jjjj", c.overlapTail(words), "partial leading word is dropped")

	cfg.Overlap = 0
	c, err = New(cfg)
	require.NoError(t, err)
	assert.Empty(t, c.overlapTail("anything at all"))
}

func TestIsRepetitive(t *testing.T) {
	assert.True(t, IsRepetitive(strings.Repeat("same ", 20)))
	assert.False(t, IsRepetitive("same same same"), "fewer than ten words are never repetitive")
	assert.False(t, IsRepetitive("one two three four five six seven eight nine ten"))
}

func TestPreprocess(t *testing.T) {
	in := "  line   one\r\nline\ttwo\n\n\n\n  para   two  "
	assert.Equal(t, "line one\nline two\n\npara two", preprocess(in))
}

func TestStats(t *testing.T) {
	c, err := New(core.ChunkingConfig{ChunkSize: 10, Overlap: 2, MinChunkSize: 1})
	require.NoError(t, err)

	s := c.Stats([]string{"aaaa", "bb cc", "abcdefghijklmnop"})
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 25, s.TotalChars)
	assert.Equal(t, 4, s.TotalWords)
	assert.Equal(t, 4, s.MinChars)
	assert.Equal(t, 16, s.MaxChars)
	assert.Equal(t, 1, s.Small)
	assert.Equal(t, 1, s.Medium)
	assert.Equal(t, 1, s.Large)

	assert.Equal(t, Stats{}, c.Stats(nil))
}
