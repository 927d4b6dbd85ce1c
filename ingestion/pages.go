package ingestion

import (
	"sort"
	"strings"
)

// locatorPrefix is how many leading runes of a chunk are matched against pages.
const locatorPrefix = 80

// newPageLocator returns a function that finds the 1-based page a chunk
// starts on. Pages pass through clean first so they compare like sanitized
// chunks. Chunks are located in order, so each search resumes where the
// previous match started. Single-page content yields nil page numbers.
func newPageLocator(pages []string, clean func(string) string) func(text string) *int {
	if len(pages) < 2 {
		return func(string) *int { return nil }
	}

	var full strings.Builder
	starts := make([]int, len(pages))
	for i, p := range pages {
		if full.Len() > 0 {
			full.WriteByte(' ')
		}
		starts[i] = full.Len()
		full.WriteString(normalizeSpace(clean(p)))
	}
	haystack := full.String()

	from := 0
	return func(text string) *int {
		needle := normalizeSpace(text)
		if r := []rune(needle); len(r) > locatorPrefix {
			needle = string(r[:locatorPrefix])
		}
		if needle == "" {
			return nil
		}
		at := strings.Index(haystack[from:], needle)
		if at < 0 {
			return nil
		}
		from += at
		// last page starting at or before the match
		page := sort.Search(len(starts), func(i int) bool { return starts[i] > from })
		return &page
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
