package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
	"github.com/kevindtbd/overplanned-sub003/internal/ranking"
)

// Rank handles POST /rank: the post-filter pass over scored candidates. The
// final ordering feeds the shadow runner as the production baseline; the
// response never waits on the shadow task.
func (h *Handlers) Rank(w http.ResponseWriter, r *http.Request) {
	var in httpContracts.RankRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.UserID == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", "user_id is required")
		return
	}

	ranked := h.PostFilter.Apply(in.Candidates)

	if h.Shadow.Active() {
		production := ranking.NodeIDs(ranked)
		candidates := ranking.NodeIDs(in.Candidates)
		h.Shadow.MaybeRun(r.Context(), in.UserID, production, candidates)
	}

	h.writeJSON(w, http.StatusOK, httpContracts.RankResponse{Candidates: ranked})
}

// PersonaSnapshot handles GET /users/{userID}/persona.
func (h *Handlers) PersonaSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	dims, err := h.Repos.Personas.Snapshot(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.PersonaResponse{UserID: userID, Dimensions: dims})
}
