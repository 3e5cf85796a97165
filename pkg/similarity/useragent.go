package similarity

import (
	"strings"
	"unicode"
)

// UserAgentSimilarity is the Jaccard index of the two user agents' token sets.
// Tokens are lower-cased runs of letters, digits, '.' and '_', so "Chrome/120.0.1"
// yields "chrome" and "120.0.1" and a minor version bump changes a single token.
// Two empty user agents score 0.
func UserAgentSimilarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
