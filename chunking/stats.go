package chunking

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Stats summarizes a set of chunks.
type Stats struct {
	Count      int     `json:"total_chunks"`
	TotalChars int     `json:"total_characters"`
	TotalWords int     `json:"total_words"`
	AvgChars   float64 `json:"avg_chunk_size"`
	AvgWords   float64 `json:"avg_words_per_chunk"`
	MinChars   int     `json:"min_chunk_size"`
	MaxChars   int     `json:"max_chunk_size"`

	// Small, Medium and Large bucket chunks relative to the configured size:
	// below half, within [0.5, 1.5] times, and above 1.5 times.
	Small  int `json:"small"`
	Medium int `json:"medium"`
	Large  int `json:"large"`
}

// Stats computes size statistics for chunks produced by c.
func (c *Chunker) Stats(chunks []string) Stats {
	var s Stats
	if len(chunks) == 0 {
		return s
	}

	size := float64(c.cfg.ChunkSize)
	s.Count = len(chunks)
	s.MinChars = -1
	for _, ch := range chunks {
		n := runeLen(ch)
		s.TotalChars += n
		s.TotalWords += len(strings.Fields(ch))
		if s.MinChars < 0 || n < s.MinChars {
			s.MinChars = n
		}
		if n > s.MaxChars {
			s.MaxChars = n
		}

		switch f := float64(n); {
		case f < size*0.5:
			s.Small++
		case f <= size*1.5:
			s.Medium++
		default:
			s.Large++
		}
	}
	s.AvgChars = float64(s.TotalChars) / float64(s.Count)
	s.AvgWords = float64(s.TotalWords) / float64(s.Count)
	return s
}

// DefaultEncoding is the tiktoken encoding used for token counts.
const DefaultEncoding = "cl100k_base"

// TokenCounter counts model tokens in chunk text.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named tiktoken encoding. Loading may fetch the
// BPE ranks over the network on first use.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// CountAll returns the total token count of chunks.
func (t *TokenCounter) CountAll(chunks []string) int {
	total := 0
	for _, ch := range chunks {
		total += t.Count(ch)
	}
	return total
}
