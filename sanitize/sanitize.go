// Package sanitize makes extracted text safe for persistent storage.
//
// Sanitization never fails. Each rule removes or normalizes characters that
// the relational store rejects (NUL), that spoof rendering (bidirectional
// overrides), or that carry no document content (control and format runes).
// Applying Text twice yields the same result as applying it once.
package sanitize

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultCategoryThreshold is the rune count above which the category allow-list applies.
	DefaultCategoryThreshold = 1000

	// DefaultMaxLength is the hard cap in runes, marker included.
	DefaultMaxLength = 50_000_000

	// TruncationMarker is appended when text exceeds the cap.
	TruncationMarker = "\n... [CONTENT TRUNCATED FOR DATABASE STORAGE]"
)

var (
	bidiOverrides = strings.NewReplacer(
		"\u202e", "",
		"\u202d", "",
		"\u200e", "",
		"\u200f", "",
	)

	controlRunes = regexp.MustCompile(`[\x{01}-\x{08}\x{0B}\x{0C}\x{0E}-\x{1F}\x{7F}-\x{9F}]`)

	allowedCategories = []*unicode.RangeTable{
		unicode.Lu, unicode.Ll, unicode.Lt, unicode.Lo,
		unicode.Nd, unicode.Nl, unicode.No,
		unicode.Zs, unicode.Zl, unicode.Zp,
		unicode.Po, unicode.Pd, unicode.Ps, unicode.Pe, unicode.Pi, unicode.Pf, unicode.Pc,
		unicode.Sm, unicode.Sc,
	}
)

// Sanitizer applies the storage sanitization rules.
type Sanitizer struct {
	categoryThreshold int
	maxLength         int
	logger            *slog.Logger
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithCategoryThreshold sets the rune count above which category filtering applies.
func WithCategoryThreshold(n int) Option {
	return func(s *Sanitizer) {
		if n >= 0 {
			s.categoryThreshold = n
		}
	}
}

// WithMaxLength sets the hard cap in runes. Values not larger than the marker are ignored.
func WithMaxLength(n int) Option {
	return func(s *Sanitizer) {
		if n > utf8.RuneCountInString(TruncationMarker) {
			s.maxLength = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sanitizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Sanitizer with default limits.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		categoryThreshold: DefaultCategoryThreshold,
		maxLength:         DefaultMaxLength,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sanitizer")
	return s
}

var defaultSanitizer = New()

// Text sanitizes s with the default limits.
func Text(s string) string {
	return defaultSanitizer.Sanitize(s)
}

// Sanitize applies every rule in order. It never panics; an internal failure
// degrades to NUL removal only.
func (s *Sanitizer) Sanitize(text string) (out string) {
	if text == "" {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sanitization failed, stripping NUL only", "panic", r)
			out = strings.ReplaceAll(text, "\x00", "")
		}
	}()

	out = s.applyRules(text)

	// Normalization can lengthen text past the category threshold or expose
	// runes the allow-list drops, so settle on a fixed point.
	for i := 0; i < maxSettlePasses; i++ {
		next := s.applyRules(out)
		if next == out {
			break
		}
		out = next
	}

	if n := utf8.RuneCountInString(out); n > s.maxLength {
		s.logger.Warn("text too long, truncating", "runes", n, "max", s.maxLength)
		keep := s.maxLength - utf8.RuneCountInString(TruncationMarker)
		out = truncateRunes(out, keep) + TruncationMarker
	}

	return out
}

const maxSettlePasses = 4

func (s *Sanitizer) applyRules(text string) string {
	// NUL bytes, replacement characters and invalid UTF-8 (which ranges as U+FFFD)
	out := strings.Map(func(r rune) rune {
		if r == 0 || r == utf8.RuneError {
			return -1
		}
		return r
	}, text)

	out = bidiOverrides.Replace(out)

	if utf8.RuneCountInString(out) > s.categoryThreshold {
		out = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' || r == '\t' || unicode.IsOneOf(allowedCategories, r) {
				return r
			}
			return -1
		}, out)
	}

	out = controlRunes.ReplaceAllString(out, "")

	out = normalize(out, s.logger)

	if !utf8.ValidString(out) {
		out = strings.ToValidUTF8(out, "")
	}
	return out
}

// normalize composes text to NFC, keeping the input if normalization panics.
func normalize(text string, logger *slog.Logger) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("unicode normalization failed", "panic", r)
			out = text
		}
	}()
	return norm.NFC.String(text)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
