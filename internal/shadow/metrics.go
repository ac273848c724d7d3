// Package shadow runs alternative ranking models beside production and
// scores them offline with overlap@k and NDCG@k.
package shadow

import "math"

// Default cutoffs for persisted results.
const (
	OverlapK = 5
	NDCGK    = 10
)

func topK(items []string, k int) []string {
	if k > len(items) {
		k = len(items)
	}
	return items[:k]
}

// OverlapAtK measures agreement between the shadow and production top-k:
// |shadow[:k] ∩ production[:k]| / k_effective, where k_effective is the
// size of the shadow top-k so short shadow lists are not over-penalized.
// Empty inputs score 0.
func OverlapAtK(shadow, production []string, k int) float64 {
	if k <= 0 || len(shadow) == 0 || len(production) == 0 {
		return 0
	}
	sTop := topK(shadow, k)
	pTop := map[string]bool{}
	for _, id := range topK(production, k) {
		pTop[id] = true
	}
	hits := 0
	for _, id := range sTop {
		if pTop[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(sTop))
}

// NDCGAtK scores the shadow ranking against production as ground truth with
// linear relevance rel(item) = max(0, |production| − position(item)); items
// absent from production are irrelevant. DCG discounts shadow positions by
// log₂(i+2). The ideal DCG sums the top-k of all relevance values, not just
// those the shadow surfaced, so a bad shadow list cannot inflate its own
// ceiling. Returns 0 when the ideal is 0.
func NDCGAtK(shadow, production []string, k int) float64 {
	if k <= 0 || len(shadow) == 0 || len(production) == 0 {
		return 0
	}
	n := len(production)
	pos := make(map[string]int, n)
	for i, id := range production {
		pos[id] = i
	}

	var dcg float64
	for i, id := range topK(shadow, k) {
		p, ok := pos[id]
		if !ok {
			continue
		}
		rel := float64(n - p)
		if rel < 0 {
			rel = 0
		}
		dcg += rel / math.Log2(float64(i)+2)
	}

	var idcg float64
	ideal := k
	if ideal > n {
		ideal = n
	}
	for i := 0; i < ideal; i++ {
		idcg += float64(n-i) / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}
