package memory

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minGram = 2
	maxGram = 15
)

// fold lowercases s and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// tokenize splits folded text on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// parseField splits "title^4" into its name and boost.
func parseField(f string) (string, float64) {
	name, boost, ok := strings.Cut(f, "^")
	if !ok {
		return f, 1
	}
	b, err := strconv.ParseFloat(boost, 64)
	if err != nil {
		return name, 1
	}
	return name, b
}

// baseField maps a sub-field such as "brand_name.keyword" to its source field.
func baseField(f string) string {
	name, _, _ := strings.Cut(f, ".")
	return name
}

func isAutocomplete(f string) bool {
	return strings.HasSuffix(f, ".autocomplete")
}

// maxEdits implements fuzziness AUTO: exact for 1-2 characters, one edit
// for 3-5 and two edits above that.
func maxEdits(term string) int {
	switch n := len([]rune(term)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// termMatches reports whether query term q matches indexed token tok.
func termMatches(q, tok string, fuzzy, prefix bool) bool {
	if prefix {
		if len([]rune(q)) < minGram {
			return false
		}
		if r := []rune(q); len(r) > maxGram {
			q = string(r[:maxGram])
		}
		return strings.HasPrefix(tok, q)
	}
	if q == tok {
		return true
	}
	if !fuzzy {
		return false
	}
	edits := maxEdits(q)
	return edits > 0 && levenshtein(q, tok, edits) <= edits
}

// levenshtein returns the edit distance between a and b, stopping early once
// it exceeds limit.
func levenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
