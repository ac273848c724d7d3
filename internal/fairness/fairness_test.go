package fairness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyVoteSequence(t *testing.T) {
	// Three members, three resolved votes, group picks rank 1 each time.
	votes := []Vote{
		{SlotID: "slot-1", GroupChoiceRank: 1, MemberRanks: map[string]int{"A": 1, "B": 5, "C": 3}},
		{SlotID: "slot-2", GroupChoiceRank: 1, MemberRanks: map[string]int{"A": 2, "B": 1, "C": 7}},
		{SlotID: "slot-3", GroupChoiceRank: 1, MemberRanks: map[string]int{"A": 4, "B": 3, "C": 1}},
	}

	s := NewState()
	for _, v := range votes {
		s = ApplyVote(s, v)
	}

	assert.Equal(t, 3, s.TotalVotes)
	assert.Equal(t, "slot-3", s.LastUpdatedSlot)

	assert.Equal(t, 4.0, s.Members["A"].CumulativeDebt)
	assert.Equal(t, 6.0, s.Members["B"].CumulativeDebt)
	assert.Equal(t, 8.0, s.Members["C"].CumulativeDebt)

	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, 3, s.Members[id].VoteCount, "member %s", id)
		assert.Equal(t, 2, s.Members[id].CompromiseCount, "member %s", id)
	}

	id, debt, ok := MostCompromised(s)
	require.True(t, ok)
	assert.Equal(t, "C", id)
	assert.Equal(t, 8.0, debt)
}

func TestApplyVoteDoesNotMutateInput(t *testing.T) {
	before := NewState()
	before.Members["A"] = MemberState{CumulativeDebt: 1}

	after := ApplyVote(before, Vote{SlotID: "s", GroupChoiceRank: 1, MemberRanks: map[string]int{"A": 3}})

	assert.Equal(t, 1.0, before.Members["A"].CumulativeDebt)
	assert.Equal(t, 0, before.TotalVotes)
	assert.Equal(t, 3.0, after.Members["A"].CumulativeDebt)
	assert.Equal(t, 1, after.TotalVotes)
}

func TestDebtClamp(t *testing.T) {
	testCases := []struct {
		name       string
		start      float64
		groupRank  int
		memberRank int
		expected   float64
	}{
		{"clamped high", 9, 1, 6, MaxDebt},
		{"clamped low", -8, 6, 1, -MaxDebt},
		{"inside range", 2, 1, 4, 5},
		{"negative delta", 3, 4, 2, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState()
			s.Members["A"] = MemberState{CumulativeDebt: tc.start}
			next := ApplyVote(s, Vote{GroupChoiceRank: tc.groupRank, MemberRanks: map[string]int{"A": tc.memberRank}})
			assert.Equal(t, tc.expected, next.Members["A"].CumulativeDebt)
		})
	}
}

func TestConflictWeights(t *testing.T) {
	s := NewState()
	s.Members["A"] = MemberState{CumulativeDebt: 4}
	s.Members["B"] = MemberState{CumulativeDebt: 6}
	s.Members["C"] = MemberState{CumulativeDebt: 8}

	w := ConflictWeights(s, []string{"A", "B", "C"})

	sum := w["A"] + w["B"] + w["C"]
	assert.InDelta(t, 1.0, sum, 1e-12)

	// 1/5, 1/7, 1/9 before normalization.
	assert.Greater(t, w["A"], w["B"])
	assert.Greater(t, w["B"], w["C"])
	assert.InDelta(t, 0.2/(0.2+1.0/7+1.0/9), w["A"], 1e-12)
}

func TestConflictWeightsFloor(t *testing.T) {
	s := NewState()
	s.Members["deep"] = MemberState{CumulativeDebt: MaxDebt}
	// 1/(1+10) ≈ 0.0909 stays above the floor; force the floor with a raw
	// weight below 0.05 being impossible under the clamp, so assert the
	// floor arithmetic directly on unknown vs known members instead.
	w := ConflictWeights(s, []string{"deep", "fresh"})
	assert.InDelta(t, 1.0, w["deep"]+w["fresh"], 1e-12)
	assert.Greater(t, w["fresh"], w["deep"])

	// Negative debt counts as zero, not as extra credit.
	s.Members["ahead"] = MemberState{CumulativeDebt: -6}
	w = ConflictWeights(s, []string{"ahead", "fresh"})
	assert.InDelta(t, 0.5, w["ahead"], 1e-12)
	assert.InDelta(t, 0.5, w["fresh"], 1e-12)
}

func TestConflictWeightsEmpty(t *testing.T) {
	assert.Empty(t, ConflictWeights(NewState(), nil))
}

func TestStateRoundTrip(t *testing.T) {
	s := NewState()
	s = ApplyVote(s, Vote{SlotID: "slot-9", GroupChoiceRank: 1, MemberRanks: map[string]int{"A": 2, "B": 7}})
	s = ApplyVote(s, Vote{SlotID: "slot-2", GroupChoiceRank: 2, MemberRanks: map[string]int{"A": 1, "B": 4}})

	blob, err := Marshal(s)
	require.NoError(t, err)

	back, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, s, back)

	// Serialization is deterministic: marshaling the parsed copy reproduces
	// the original bytes.
	blob2, err := Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, blob, blob2)
}

func TestUnmarshalEmpty(t *testing.T) {
	s, err := Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalVotes)
	assert.NotNil(t, s.Members)
}

func TestDeterminism(t *testing.T) {
	build := func() State {
		s := NewState()
		s = ApplyVote(s, Vote{SlotID: "s1", GroupChoiceRank: 1, MemberRanks: map[string]int{"m1": 3, "m2": 1, "m3": 9}})
		s = ApplyVote(s, Vote{SlotID: "s2", GroupChoiceRank: 1, MemberRanks: map[string]int{"m1": 1, "m2": 6, "m3": 2}})
		return s
	}
	a, err := Marshal(build())
	require.NoError(t, err)
	b, err := Marshal(build())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
