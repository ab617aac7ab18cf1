// Package fuzzy corrects misspelled aliases to the nearest stored alias.
package fuzzy

import (
	"strings"

	"github.com/agext/levenshtein"
)

// MaxDistance is the largest edit distance accepted as a correction.
const MaxDistance = 2

// Distance returns the Levenshtein edit distance between a and b, with
// insertion, deletion and substitution each costing 1. It compares runes,
// not bytes.
func Distance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// ClosestAlias returns the alias nearest to query, comparing case-insensitively.
// The first alias with the minimum distance wins. It reports false when
// aliases is empty or the minimum distance exceeds MaxDistance.
func ClosestAlias(query string, aliases []string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	best := ""
	bestDist := -1
	for _, alias := range aliases {
		d := Distance(q, strings.ToLower(alias))
		if bestDist < 0 || d < bestDist {
			best, bestDist = alias, d
		}
	}
	if bestDist < 0 || bestDist > MaxDistance {
		return "", false
	}
	return best, true
}
