package handlers

import (
	"net/http"

	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
	"github.com/kevindtbd/overplanned-sub003/internal/signal"
)

// RecordSignal handles POST /signals.
func (h *Handlers) RecordSignal(w http.ResponseWriter, r *http.Request) {
	var in signal.RecordInput
	if !h.decode(w, r, &in) {
		return
	}

	sig, err := h.Pipeline.Record(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sig)
}

// OffPlanAdd handles POST /signals/offplan.
func (h *Handlers) OffPlanAdd(w http.ResponseWriter, r *http.Request) {
	var in signal.OffPlanInput
	if !h.decode(w, r, &in) {
		return
	}

	res, err := h.Pipeline.OffPlanAdd(r.Context(), h.Resolver, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	// Duplicates are successes; the venue is already on record.
	h.writeJSON(w, http.StatusOK, res)
}

// RecordIntention handles POST /intentions.
func (h *Handlers) RecordIntention(w http.ResponseWriter, r *http.Request) {
	var in httpContracts.IntentionRequest
	if !h.decode(w, r, &in) {
		return
	}

	err := h.Pipeline.RecordExplicitIntention(r.Context(),
		in.BehavioralSignalID, in.IntentionType, in.IntentionValue, in.Confidence)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}
