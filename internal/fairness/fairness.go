// Package fairness tracks per-member preference debt across group votes and
// detects Abilene-paradox consensus. All functions are pure: they take a
// state value and return a new one, never mutating the input.
package fairness

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MaxDebt bounds cumulative debt on both sides.
const MaxDebt = 10.0

// MinConflictWeight floors a member's inverse-debt weight before
// normalization so nobody's preference collapses to zero.
const MinConflictWeight = 0.05

// MemberState accumulates one member's compromise history.
type MemberState struct {
	CumulativeDebt  float64 `json:"cumulative_debt"`
	VoteCount       int     `json:"vote_count"`
	CompromiseCount int     `json:"compromise_count"`
}

// State is the per-trip fairness ledger. It serializes as a map of records
// so identical inputs round-trip byte-identically.
type State struct {
	TotalVotes      int                    `json:"total_votes"`
	LastUpdatedSlot string                 `json:"last_updated_slot,omitempty"`
	Members         map[string]MemberState `json:"members"`
}

// NewState returns an empty ledger.
func NewState() State {
	return State{Members: map[string]MemberState{}}
}

// Vote is one resolved group decision: the rank the group chose (usually 1)
// and where each member had ranked that choice.
type Vote struct {
	SlotID          string         `json:"slot_id"`
	GroupChoiceRank int            `json:"group_choice_rank"`
	MemberRanks     map[string]int `json:"member_ranks"`
}

func clampDebt(d float64) float64 {
	if d > MaxDebt {
		return MaxDebt
	}
	if d < -MaxDebt {
		return -MaxDebt
	}
	return d
}

// ApplyVote folds one vote into the ledger and returns the successor state.
// delta = memberRank − groupChoiceRank: positive means the member preferred
// something the group passed over.
func ApplyVote(s State, v Vote) State {
	next := State{
		TotalVotes:      s.TotalVotes + 1,
		LastUpdatedSlot: v.SlotID,
		Members:         make(map[string]MemberState, len(s.Members)+len(v.MemberRanks)),
	}
	for id, m := range s.Members {
		next.Members[id] = m
	}
	for id, rank := range v.MemberRanks {
		m := next.Members[id]
		delta := float64(rank - v.GroupChoiceRank)
		m.CumulativeDebt = clampDebt(m.CumulativeDebt + delta)
		m.VoteCount++
		if delta > 0 {
			m.CompromiseCount++
		}
		next.Members[id] = m
	}
	return next
}

// ConflictWeights computes normalized inverse-debt weights for the given
// members: w = 1/(1+max(0,debt)), floored at MinConflictWeight, then scaled
// to sum 1. The weight is the share of the next compromise a member is asked
// to absorb, so members deep in debt carry the smallest share. Members
// absent from the ledger weigh in at debt zero.
func ConflictWeights(s State, memberIDs []string) map[string]float64 {
	if len(memberIDs) == 0 {
		return map[string]float64{}
	}
	raw := make(map[string]float64, len(memberIDs))
	var sum float64
	for _, id := range memberIDs {
		debt := s.Members[id].CumulativeDebt
		if debt < 0 {
			debt = 0
		}
		w := 1.0 / (1.0 + debt)
		if w < MinConflictWeight {
			w = MinConflictWeight
		}
		raw[id] = w
		sum += w
	}
	out := make(map[string]float64, len(memberIDs))
	for id, w := range raw {
		out[id] = w / sum
	}
	return out
}

// MostCompromised returns the member carrying the highest debt, ties broken
// by id ascending so the answer is deterministic. ok is false on an empty
// ledger.
func MostCompromised(s State) (memberID string, debt float64, ok bool) {
	ids := make([]string, 0, len(s.Members))
	for id := range s.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := s.Members[id].CumulativeDebt
		if !ok || d > debt {
			memberID, debt, ok = id, d, true
		}
	}
	return memberID, debt, ok
}

// Marshal serializes the state. encoding/json emits map keys sorted, which
// keeps serialization deterministic for identical states.
func Marshal(s State) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal fairness state: %w", err)
	}
	return b, nil
}

// Unmarshal parses a stored state blob. nil or empty input yields a fresh
// ledger so first-vote callers need no special case.
func Unmarshal(raw []byte) (State, error) {
	if len(raw) == 0 {
		return NewState(), nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("unmarshal fairness state: %w", err)
	}
	if s.Members == nil {
		s.Members = map[string]MemberState{}
	}
	return s, nil
}
