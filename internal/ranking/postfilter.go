// Package ranking applies the post-filters that run after candidate scoring:
// the cantMiss score floor and the transitional tourist-trap correction.
package ranking

import "sort"

// Post-filter constants.
const (
	// CantMissFloor is the minimum final score for irreplaceable nodes.
	CantMissFloor = 0.72

	// TouristFlagThreshold flags a candidate as tourist-heavy when its
	// tourist score is strictly greater.
	TouristFlagThreshold = 0.5

	// TouristDemoteThreshold additionally demotes the candidate's score when
	// strictly exceeded.
	TouristDemoteThreshold = 0.65

	// TouristDemotionFactor scales demoted scores.
	TouristDemotionFactor = 0.85
)

// FlagTouristHeavy marks candidates whose tourist score crossed the flag
// threshold.
const FlagTouristHeavy = "tourist_heavy"

// Candidate is one ranked node as the post-filters see it.
type Candidate struct {
	NodeID       string   `json:"node_id"`
	Score        float64  `json:"score"`
	CantMiss     bool     `json:"cant_miss"`
	TouristScore float64  `json:"tourist_score"`
	Flags        []string `json:"flags,omitempty"`
}

// PostFilter bundles the post-ranking passes. TouristEnabled defaults off;
// the correction is a transitional heuristic kept dormant until enabled by
// configuration.
type PostFilter struct {
	TouristEnabled bool
}

// Apply runs the tourist correction (when enabled) and then the cantMiss
// floor, returning a new slice sorted by score descending. The floor runs
// last so a cantMiss node's final score is always at least CantMissFloor.
// Ties keep their incoming order.
func (f PostFilter) Apply(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	if f.TouristEnabled {
		for i := range out {
			ts := out[i].TouristScore
			if ts > TouristFlagThreshold {
				out[i].Flags = append(append([]string(nil), out[i].Flags...), FlagTouristHeavy)
			}
			if ts > TouristDemoteThreshold {
				out[i].Score *= TouristDemotionFactor
			}
		}
	}

	for i := range out {
		if out[i].CantMiss && out[i].Score < CantMissFloor {
			out[i].Score = CantMissFloor
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// NodeIDs projects the ranking order, highest score first.
func NodeIDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.NodeID
	}
	return ids
}
