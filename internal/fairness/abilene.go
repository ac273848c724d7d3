package fairness

import "sort"

// Abilene detection constants.
const (
	// AbileneThreshold is the enthusiasm ceiling: the group is in Abilene
	// territory only when every member's enthusiasm is strictly below it.
	AbileneThreshold = 0.4

	// MinCandidatesForDetection guards against degenerate votes; with fewer
	// candidates rank carries too little information to call a paradox.
	MinCandidatesForDetection = 3
)

// AbileneResult reports per-member enthusiasm for the winning choice and
// whether the group agreed on something nobody actually wanted.
type AbileneResult struct {
	IsAbilene      bool               `json:"is_abilene"`
	Enthusiasm     map[string]float64 `json:"enthusiasm"`
	GroupMean      float64            `json:"group_mean"`
	GroupMin       float64            `json:"group_min"`
	Threshold      float64            `json:"threshold"`
	Recommendation string             `json:"recommendation,omitempty"`
}

// DetectAbilene scores each member's enthusiasm for the vote winner from
// where they ranked it among totalCandidates options:
//
//	e = 1 − clamp(rank−1, 0, N−1) / max(N−1, 1)
//
// Rank 1 scores 1.0, last place scores 0.0. With fewer than
// MinCandidatesForDetection candidates the result is always not-Abilene with
// all enthusiasms pinned to 1.0.
func DetectAbilene(winnerRanks map[string]int, totalCandidates int) AbileneResult {
	res := AbileneResult{
		Enthusiasm: make(map[string]float64, len(winnerRanks)),
		Threshold:  AbileneThreshold,
	}
	if len(winnerRanks) == 0 {
		return res
	}

	if totalCandidates < MinCandidatesForDetection {
		for id := range winnerRanks {
			res.Enthusiasm[id] = 1.0
		}
		res.GroupMean = 1.0
		res.GroupMin = 1.0
		return res
	}

	// Sorted iteration keeps the float accumulation bit-identical across
	// runs with the same input.
	ids := make([]string, 0, len(winnerRanks))
	for id := range winnerRanks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	span := float64(totalCandidates - 1)
	if span < 1 {
		span = 1
	}
	all := true
	sum := 0.0
	min := 1.0
	for i, id := range ids {
		pos := float64(winnerRanks[id] - 1)
		if pos < 0 {
			pos = 0
		} else if pos > span {
			pos = span
		}
		e := 1.0 - pos/span
		res.Enthusiasm[id] = e
		sum += e
		if i == 0 || e < min {
			min = e
		}
		if e >= AbileneThreshold {
			all = false
		}
	}
	res.GroupMean = sum / float64(len(ids))
	res.GroupMin = min
	res.IsAbilene = all
	if all {
		res.Recommendation = "Nobody ranked this choice highly. Surface each member's top pick and re-run the vote before locking the slot."
	}
	return res
}
