package search

import (
	"strings"
	"unicode"
)

// stopWords are ignored when checking for verbatim matches.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an and are as at be but by do for from has have in is it its
		not of on or that the this to was were what when which with you`) {
		stopWords[w] = struct{}{}
	}
}

// tokenize lowercases text, splits it on anything that is not a letter or
// digit and drops stop words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	filtered := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// containsAllQueryWords reports whether every meaningful query word occurs
// in content. Queries made only of stop words never match.
func containsAllQueryWords(content, query string) bool {
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return false
	}

	present := make(map[string]struct{})
	for _, w := range tokenize(content) {
		present[w] = struct{}{}
	}
	for _, w := range queryWords {
		if _, ok := present[w]; !ok {
			return false
		}
	}
	return true
}
