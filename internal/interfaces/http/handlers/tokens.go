package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
)

// CreateInvite handles POST /trips/{tripID}/invites. Organizer only.
func (h *Handlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerID(w, r)
	if !ok {
		return
	}
	tripID := mux.Vars(r)["tripID"]

	invite, err := h.Tokens.CreateInvite(r.Context(), tripID, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, httpContracts.TokenResponse{
		Token:     invite.Token,
		TripID:    invite.TripID,
		ExpiresAt: invite.ExpiresAt,
	})
}

// RedeemInvite handles POST /invites/{token}/redeem.
func (h *Handlers) RedeemInvite(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerID(w, r)
	if !ok {
		return
	}
	tokenValue := mux.Vars(r)["token"]

	member, err := h.Tokens.RedeemInvite(r.Context(), tokenValue, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.RedeemResponse{
		TripID: member.TripID,
		Role:   member.Role,
	})
}

// CreateShare handles POST /trips/{tripID}/shares. Any member may share.
func (h *Handlers) CreateShare(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerID(w, r)
	if !ok {
		return
	}
	tripID := mux.Vars(r)["tripID"]

	share, err := h.Tokens.CreateShare(r.Context(), tripID, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, httpContracts.TokenResponse{
		Token:     share.Token,
		TripID:    share.TripID,
		ExpiresAt: share.ExpiresAt,
	})
}

// SharedTrip handles GET /shares/{token}: the unauthenticated read-only view
// a live share token grants.
func (h *Handlers) SharedTrip(w http.ResponseWriter, r *http.Request) {
	tokenValue := mux.Vars(r)["token"]

	share, err := h.Tokens.ResolveShare(r.Context(), tokenValue)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	trip, err := h.Repos.Trips.Get(r.Context(), share.TripID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	slots, err := h.Repos.Slots.ListTrip(r.Context(), share.TripID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.SharedTripResponse{Trip: trip, Slots: slots})
}
