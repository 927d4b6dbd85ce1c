package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations never end a sentence.
var abbreviations = map[string]struct{}{
	"etc.": {}, "vs.": {}, "e.g.": {}, "i.e.": {},
	"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "prof.": {},
	"fig.": {}, "no.": {}, "cf.": {}, "al.": {},
}

// SplitSentences splits text after terminal punctuation that is followed by
// whitespace and an upper case letter (or a digit, after a period).
// Abbreviations and enumeration markers like "3." do not split.
func SplitSentences(text string) []string {
	var out []string
	start := 0

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != '.' && r != '!' && r != '?' {
			i += size
			continue
		}

		end := i + size
		j := end
		for j < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsSize
		}
		if j == end || j >= len(text) {
			i = end
			continue
		}

		next, _ := utf8.DecodeRuneInString(text[j:])
		boundary := unicode.IsUpper(next) || (r == '.' && unicode.IsDigit(next))
		if boundary && r == '.' && !endsSentence(text[start:end]) {
			boundary = false
		}
		if boundary {
			if s := strings.TrimSpace(text[start:end]); s != "" {
				out = append(out, s)
			}
			start = j
		}
		i = j
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// endsSentence reports whether the period closing segment is a sentence end.
func endsSentence(segment string) bool {
	word := segment
	if idx := strings.LastIndexFunc(segment, unicode.IsSpace); idx >= 0 {
		word = segment[idx+1:]
	}
	word = strings.TrimLeft(word, "([{\"'")

	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return false
	}

	// enumeration markers such as "1." or "12."
	digits := strings.TrimSuffix(word, ".")
	if digits != "" && strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return false
	}
	return true
}
