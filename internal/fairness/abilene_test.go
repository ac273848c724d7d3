package fairness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAbilene(t *testing.T) {
	// 10 candidates, winner ranked 8/9/7: enthusiasms 2/9, 1/9, 3/9 — all
	// strictly under 0.4, so the group agreed on something nobody wants.
	res := DetectAbilene(map[string]int{"A": 8, "B": 9, "C": 7}, 10)

	require.True(t, res.IsAbilene)
	assert.InDelta(t, 2.0/9.0, res.Enthusiasm["A"], 1e-12)
	assert.InDelta(t, 1.0/9.0, res.Enthusiasm["B"], 1e-12)
	assert.InDelta(t, 3.0/9.0, res.Enthusiasm["C"], 1e-12)
	assert.InDelta(t, 1.0/9.0, res.GroupMin, 1e-12)
	assert.InDelta(t, (2.0+1.0+3.0)/27.0, res.GroupMean, 1e-12)
	assert.Equal(t, AbileneThreshold, res.Threshold)
	assert.NotEmpty(t, res.Recommendation)
}

func TestDetectAbileneOneEnthusiast(t *testing.T) {
	res := DetectAbilene(map[string]int{"A": 1, "B": 9, "C": 7}, 10)

	assert.False(t, res.IsAbilene)
	assert.Equal(t, 1.0, res.Enthusiasm["A"])
	assert.Empty(t, res.Recommendation)
}

func TestDetectAbileneBoundaryNotAbilene(t *testing.T) {
	// 6 candidates, rank 4: e = 1 − 3/5 = 0.4 exactly. Strictly-below rule
	// means the boundary is not Abilene.
	res := DetectAbilene(map[string]int{"A": 4, "B": 4}, 6)

	assert.False(t, res.IsAbilene)
	assert.InDelta(t, 0.4, res.Enthusiasm["A"], 1e-12)
	assert.Empty(t, res.Recommendation)
}

func TestDetectAbileneTooFewCandidates(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		res := DetectAbilene(map[string]int{"A": 2, "B": 2}, n)
		assert.False(t, res.IsAbilene, "N=%d", n)
		assert.Equal(t, 1.0, res.Enthusiasm["A"], "N=%d", n)
		assert.Equal(t, 1.0, res.Enthusiasm["B"], "N=%d", n)
		assert.Equal(t, 1.0, res.GroupMean, "N=%d", n)
	}
}

func TestDetectAbileneRankClamp(t *testing.T) {
	// Ranks past the candidate count and below 1 clamp into [0, N−1].
	res := DetectAbilene(map[string]int{"over": 99, "under": 0}, 5)

	assert.Equal(t, 0.0, res.Enthusiasm["over"])
	assert.Equal(t, 1.0, res.Enthusiasm["under"])
	assert.False(t, res.IsAbilene)
}

func TestDetectAbileneEmpty(t *testing.T) {
	res := DetectAbilene(nil, 10)
	assert.False(t, res.IsAbilene)
	assert.Empty(t, res.Enthusiasm)
}
