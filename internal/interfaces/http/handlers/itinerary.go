package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
	"github.com/kevindtbd/overplanned-sub003/internal/itinerary"
)

// EvaluatePivot handles POST /slots/{slotID}/pivot/evaluate. It computes the
// cascade a duration change would force without writing anything.
func (h *Handlers) EvaluatePivot(w http.ResponseWriter, r *http.Request) {
	slotID := mux.Vars(r)["slotID"]

	var in httpContracts.PivotRequest
	if !h.decode(w, r, &in) {
		return
	}

	res, err := h.Pivot.Evaluate(r.Context(), slotID, in.NewDurationMinutes)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.PivotResponse{Result: res})
}

// ApplyPivot handles POST /slots/{slotID}/pivot/apply.
func (h *Handlers) ApplyPivot(w http.ResponseWriter, r *http.Request) {
	slotID := mux.Vars(r)["slotID"]

	var in httpContracts.PivotRequest
	if !h.decode(w, r, &in) {
		return
	}

	res, outcome, err := h.Pivot.Apply(r.Context(), slotID, in.NewDurationMinutes)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.PivotResponse{Result: res, Outcome: outcome})
}

// PlanMicroStops handles POST /trips/{tripID}/days/{day}/microstops.
func (h *Handlers) PlanMicroStops(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tripID := vars["tripID"]
	day, err := strconv.Atoi(vars["day"])
	if err != nil || day < 1 {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", "day must be a positive integer")
		return
	}

	insertions, err := h.MicroStops.PlanDay(r.Context(), tripID, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if insertions == nil {
		insertions = []itinerary.Insertion{}
	}
	h.writeJSON(w, http.StatusOK, httpContracts.MicroStopResponse{Insertions: insertions})
}
