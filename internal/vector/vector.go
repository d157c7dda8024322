// Package vector implements the similarity ranking used by the retrieval
// pipeline.
package vector

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of two vectors. Mismatched or empty
// vectors score zero, which keeps malformed records out of the top ranks
// without failing the search.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Match pairs an item index with its similarity score.
type Match struct {
	Index int
	Score float64
}

// TopK ranks candidate vectors against the query and returns the best k
// matches in descending score order. Ties break on the lower index so the
// ordering stays deterministic.
func TopK(query []float32, candidates [][]float32, k int) []Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		matches = append(matches, Match{Index: i, Score: Cosine(query, c)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Index < matches[j].Index
		}
		return matches[i].Score > matches[j].Score
	})
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}
