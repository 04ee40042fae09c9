// Package match ranks registry search candidates against a free-text query.
//
// Similarity is a pure normalized edit-distance ratio so that ranking stays
// deterministic and reproducible: no external fuzzy-matching dependency.
package match

import (
	"sort"

	"bundesanzeiger_insight/pkg/models"
)

// DefaultMinSimilarity is the ratio below which candidates are dropped.
const DefaultMinSimilarity = 65

// Ratio returns a 0..100 similarity score between two strings, derived from
// the Levenshtein distance over their normalized forms. 100 means identical.
func Ratio(a, b string) int {
	a = models.NormalizeCompanyName(a)
	b = models.NormalizeCompanyName(b)
	if a == b {
		return 100
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein([]rune(a), []rune(b))
	return int(float64(longest-dist) / float64(longest) * 100)
}

// levenshtein computes the edit distance with a two-row rolling buffer.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Rank scores candidates against the query, drops everything below
// minSimilarity, and orders the rest: descending score, then more available
// reports first, then registry id ascending for full determinism.
func Rank(query string, candidates []models.RegistryEntry, minSimilarity int) []models.RegistryEntry {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}

	ranked := make([]models.RegistryEntry, 0, len(candidates))
	for _, c := range candidates {
		c.MatchScore = Ratio(query, c.DisplayName)
		if c.MatchScore < minSimilarity {
			continue
		}
		ranked = append(ranked, c)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].MatchScore != ranked[j].MatchScore {
			return ranked[i].MatchScore > ranked[j].MatchScore
		}
		if ranked[i].ReportCount != ranked[j].ReportCount {
			return ranked[i].ReportCount > ranked[j].ReportCount
		}
		return ranked[i].RegistryID < ranked[j].RegistryID
	})
	return ranked
}
