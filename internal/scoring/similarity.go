package scoring

import (
	"context"
	"strings"
	"unicode"
)

// LexicalSimilarity is a cheap token-overlap similarity (Jaccard over
// lowercase word sets). It stands in when no embedding service is wired;
// callers needing semantic nuance should inject their own SimilarityFunc.
func LexicalSimilarity(_ context.Context, a, b string) (float64, error) {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1, nil
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union), nil
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}
