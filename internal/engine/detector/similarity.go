package detector

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// CharacterSimilarity returns a normalized edit-distance ratio in [0, 1]
// between the lower-cased inputs. It catches near-duplicates that differ by
// minor character substitutions.
func CharacterSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	a = strings.ToLower(a)
	b = strings.ToLower(b)

	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// TokenJaccard returns the multiset intersection-over-union of two token
// lists. It catches reordered or padded duplicates that character similarity
// misses.
func TokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	countsA := make(map[string]int, len(a))
	for _, token := range a {
		countsA[token]++
	}
	countsB := make(map[string]int, len(b))
	for _, token := range b {
		countsB[token]++
	}

	intersection := 0
	union := 0
	for token, countA := range countsA {
		countB := countsB[token]
		if countB < countA {
			intersection += countB
			union += countA
		} else {
			intersection += countA
			union += countB
		}
	}
	for token, countB := range countsB {
		if _, ok := countsA[token]; !ok {
			union += countB
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
