package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kevindtbd/overplanned-sub003/internal/fairness"
	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
)

// ApplyVote handles POST /trips/{tripID}/votes: it folds one resolved group
// decision into the trip's fairness ledger under the row lock, then runs the
// consensus check on the same ranks.
func (h *Handlers) ApplyVote(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["tripID"]

	var in httpContracts.VoteRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.SlotID == "" || len(in.MemberRanks) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", "slot_id and member_ranks are required")
		return
	}
	if in.GroupChoiceRank < 1 {
		in.GroupChoiceRank = 1
	}

	var next fairness.State
	err := h.Repos.Fairness.Mutate(r.Context(), tripID, func(raw []byte) ([]byte, error) {
		state, err := fairness.Unmarshal(raw)
		if err != nil {
			return nil, err
		}
		next = fairness.ApplyVote(state, fairness.Vote{
			SlotID:          in.SlotID,
			GroupChoiceRank: in.GroupChoiceRank,
			MemberRanks:     in.MemberRanks,
		})
		return fairness.Marshal(next)
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	members := make([]string, 0, len(in.MemberRanks))
	for id := range in.MemberRanks {
		members = append(members, id)
	}

	h.writeJSON(w, http.StatusOK, httpContracts.VoteResponse{
		State:           next,
		ConflictWeights: fairness.ConflictWeights(next, members),
		Abilene:         fairness.DetectAbilene(in.MemberRanks, in.TotalCandidates),
	})
}

// GetFairness handles GET /trips/{tripID}/fairness.
func (h *Handlers) GetFairness(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["tripID"]

	raw, err := h.Repos.Fairness.Get(r.Context(), tripID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	state, err := fairness.Unmarshal(raw)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := httpContracts.FairnessResponse{State: state}
	if id, debt, ok := fairness.MostCompromised(state); ok {
		resp.MostCompromised = id
		resp.HighestDebt = debt
	}
	h.writeJSON(w, http.StatusOK, resp)
}
