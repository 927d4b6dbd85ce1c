package chunking

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/sanitize"
)

// Strategy names the method that produced a set of chunks.
type Strategy string

const (
	StrategyWhole     Strategy = "whole"
	StrategySection   Strategy = "section"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
	StrategyCharacter Strategy = "character"
	StrategyFallback  Strategy = "fallback"
)

// Result is the outcome of chunking one text.
type Result struct {
	Chunks   []string
	Strategy Strategy

	// Degraded is set when the structural path failed and fixed-size slicing was used.
	Degraded bool
	Err      error
}

var (
	sectionPattern   = regexp.MustCompile(`(?m)^(?:[A-Z][A-Z ]{2,}$|\d+\.\s*[A-Z][a-z]+|#{1,6}\s+\S.*$|[A-Z][a-z]+:(?:\s|$))`)
	paragraphPattern = regexp.MustCompile(`\n\s*\n`)
	blankLines       = regexp.MustCompile(`\n{2,}`)
	alphanumeric     = regexp.MustCompile(`[A-Za-z0-9]`)
)

// repetitionThreshold is the minimum unique/total word ratio for chunks of 10 or more words.
const repetitionThreshold = 0.8

type strategy struct {
	name    Strategy
	split   func(string) []string
	join    string
	enabled func(core.ChunkingConfig) bool
}

// Chunker segments text according to a ChunkingConfig.
type Chunker struct {
	cfg        core.ChunkingConfig
	sanitizer  *sanitize.Sanitizer
	strategies []strategy
	logger     *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSanitizer sets the sanitizer applied to fallback pieces.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(c *Chunker) {
		if s != nil {
			c.sanitizer = s
		}
	}
}

// New creates a Chunker. The config is validated and copied.
func New(cfg core.ChunkingConfig, opts ...Option) (*Chunker, error) {
	if err := core.ValidateChunkingConfig(cfg); err != nil {
		return nil, err
	}

	c := &Chunker{
		cfg:       cfg,
		sanitizer: sanitize.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chunker")

	c.strategies = []strategy{
		{name: StrategySection, split: splitSections, join: "\n\n", enabled: func(cfg core.ChunkingConfig) bool { return cfg.PreserveParagraphs }},
		{name: StrategyParagraph, split: splitParagraphs, join: "\n\n", enabled: func(cfg core.ChunkingConfig) bool { return cfg.PreserveParagraphs }},
		{name: StrategySentence, split: SplitSentences, join: " ", enabled: func(cfg core.ChunkingConfig) bool { return cfg.PreserveSentences }},
	}
	return c, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() core.ChunkingConfig {
	return c.cfg
}

// Chunk splits text into chunks. It never returns empty or whitespace-only chunks.
func (c *Chunker) Chunk(text string) Result {
	text = preprocess(text)
	if text == "" {
		return Result{Strategy: StrategyWhole}
	}

	if runeLen(text) <= c.cfg.ChunkSize {
		if runeLen(text) < c.cfg.MinChunkSize {
			return Result{Strategy: StrategyWhole}
		}
		return Result{Chunks: []string{text}, Strategy: StrategyWhole}
	}

	chunks, used, err := c.hierarchical(text)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrChunkingDegraded, err)
		c.logger.Error("hierarchical chunking failed, using fixed-size slicing", "error", err)
		return Result{
			Chunks:   c.simpleChunks(text),
			Strategy: StrategyFallback,
			Degraded: true,
			Err:      err,
		}
	}

	chunks = c.validate(chunks)
	c.logger.Debug("chunked text", "chunks", len(chunks), "chars", runeLen(text), "strategy", used)
	return Result{Chunks: chunks, Strategy: used}
}

func (c *Chunker) hierarchical(text string) (chunks []string, used Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks, used, err = nil, "", fmt.Errorf("panic: %v", r)
		}
	}()

	for _, s := range c.strategies {
		if !s.enabled(c.cfg) {
			continue
		}
		units := s.split(text)
		packed := c.pack(units, s.join)
		if c.reasonable(packed) {
			return packed, s.name, nil
		}
	}
	return c.characterChunks(text), StrategyCharacter, nil
}

// pack greedily fills chunks with units, seeding each new chunk with an
// overlap tail from the previous one.
func (c *Chunker) pack(units []string, sep string) []string {
	var chunks []string
	var current, fresh string

	for _, unit := range units {
		if current != "" && runeLen(current)+runeLen(unit) > c.cfg.ChunkSize && runeLen(current) >= c.cfg.MinChunkSize {
			chunks = append(chunks, strings.TrimSpace(current))
			if tail := c.overlapTail(current); tail != "" {
				current = tail + sep + unit
			} else {
				current = unit
			}
			fresh = unit
			continue
		}
		current = joinNonEmpty(current, unit, sep)
		fresh = joinNonEmpty(fresh, unit, sep)
	}

	switch {
	case strings.TrimSpace(current) == "":
	case runeLen(current) >= c.cfg.MinChunkSize:
		chunks = append(chunks, strings.TrimSpace(current))
	case len(chunks) > 0 && fresh != "":
		// A short remainder joins the previous chunk rather than being lost.
		last := len(chunks) - 1
		chunks[last] = chunks[last] + sep + strings.TrimSpace(fresh)
	}
	return chunks
}

// overlapTail returns the trailing text carried into the next chunk.
func (c *Chunker) overlapTail(chunk string) string {
	if c.cfg.Overlap == 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= c.cfg.Overlap {
		return strings.TrimSpace(chunk)
	}

	start := len(runes) - c.cfg.Overlap
	window := string(runes[start:])
	if sentences := SplitSentences(window); len(sentences) > 1 {
		return sentences[len(sentences)-1]
	}

	// drop a leading partial word
	if !unicode.IsSpace(runes[start-1]) && !unicode.IsSpace(runes[start]) {
		if idx := strings.IndexFunc(window, unicode.IsSpace); idx >= 0 {
			window = window[idx:]
		}
	}
	return strings.TrimSpace(window)
}

func (c *Chunker) reasonable(chunks []string) bool {
	if len(chunks) == 0 {
		return false
	}
	total := 0
	for _, ch := range chunks {
		total += runeLen(ch)
	}
	avg := float64(total) / float64(len(chunks))
	return avg >= float64(c.cfg.MinChunkSize) && avg <= float64(2*c.cfg.ChunkSize)
}

// characterChunks windows text by characters, ending each window on a word
// boundary when one exists.
func (c *Chunker) characterChunks(text string) []string {
	runes := []rune(text)
	n := len(runes)
	size := c.cfg.ChunkSize

	var chunks []string
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			chunk := strings.TrimSpace(string(runes[start:]))
			if runeLen(chunk) < c.cfg.MinChunkSize && len(chunks) > 0 {
				// widen the last window backwards instead of dropping the tail
				start = wordStart(runes, max(0, n-size), n)
				chunk = strings.TrimSpace(string(runes[start:]))
			}
			if chunk != "" && runeLen(chunk) >= c.cfg.MinChunkSize {
				chunks = append(chunks, chunk)
			}
			break
		}

		for end > start && !unicode.IsSpace(runes[end]) {
			end--
		}
		if end == start {
			end = start + size
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); runeLen(chunk) >= c.cfg.MinChunkSize {
			chunks = append(chunks, chunk)
		}

		next := end - c.cfg.Overlap
		if next <= start {
			next = start + 1
		}
		start = wordStart(runes, next, end)
	}
	return chunks
}

// wordStart moves pos forward to the start of a word, stopping at limit.
func wordStart(runes []rune, pos, limit int) int {
	for pos > 0 && pos < limit && !unicode.IsSpace(runes[pos-1]) {
		pos++
	}
	return pos
}

// simpleChunks slices text into fixed-size pieces with no structural
// awareness, sanitizing each piece and dropping empties.
func (c *Chunker) simpleChunks(text string) []string {
	runes := []rune(text)
	var chunks []string
	for i := 0; i < len(runes); i += c.cfg.ChunkSize {
		end := min(i+c.cfg.ChunkSize, len(runes))
		piece := strings.TrimSpace(c.sanitizer.Sanitize(string(runes[i:end])))
		if piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}

// validate drops chunks that are too short, carry no alphanumerics, or repeat themselves.
func (c *Chunker) validate(chunks []string) []string {
	valid := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if runeLen(ch) < c.cfg.MinChunkSize || ch == "" {
			continue
		}
		if !alphanumeric.MatchString(ch) {
			continue
		}
		if IsRepetitive(ch) {
			continue
		}
		valid = append(valid, ch)
	}
	return valid
}

// IsRepetitive reports whether a text of ten or more words has a unique
// word ratio below 0.8.
func IsRepetitive(text string) bool {
	words := strings.Fields(text)
	if len(words) < 10 {
		return false
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique))/float64(len(words)) < repetitionThreshold
}

// preprocess collapses horizontal whitespace and blank-line runs while
// keeping line and paragraph breaks.
func preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

func splitSections(text string) []string {
	var sections []string
	start := 0
	for _, loc := range sectionPattern.FindAllStringIndex(text, -1) {
		if loc[0] == 0 || loc[0] <= start {
			continue
		}
		if s := strings.TrimSpace(text[start:loc[0]]); s != "" {
			sections = append(sections, s)
		}
		start = loc[0]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sections = append(sections, s)
	}
	return sections
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphPattern.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

func joinNonEmpty(a, b, sep string) string {
	if a == "" {
		return b
	}
	return a + sep + b
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
