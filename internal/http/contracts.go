// Package http defines the wire contracts shared by the HTTP handlers and
// their clients.
package http

import (
	"time"

	"github.com/kevindtbd/overplanned-sub003/internal/fairness"
	"github.com/kevindtbd/overplanned-sub003/internal/itinerary"
	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
	"github.com/kevindtbd/overplanned-sub003/internal/ranking"
)

// ErrorResponse represents API error responses.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Database  persistence.HealthCheck `json:"database"`
}

// IntentionRequest records explicit user intent for a stored signal.
type IntentionRequest struct {
	BehavioralSignalID string  `json:"behavioral_signal_id"`
	IntentionType      string  `json:"intention_type"`
	IntentionValue     string  `json:"intention_value"`
	Confidence         float64 `json:"confidence"`
}

// VoteRequest resolves one group decision on a trip. MemberRanks maps each
// member to where they ranked the winning choice.
type VoteRequest struct {
	SlotID          string         `json:"slot_id"`
	GroupChoiceRank int            `json:"group_choice_rank"`
	MemberRanks     map[string]int `json:"member_ranks"`
	TotalCandidates int            `json:"total_candidates"`
}

// VoteResponse carries the post-vote ledger and the consensus check.
type VoteResponse struct {
	State           fairness.State         `json:"state"`
	ConflictWeights map[string]float64     `json:"conflict_weights"`
	Abilene         fairness.AbileneResult `json:"abilene"`
}

// FairnessResponse is the read-side ledger view.
type FairnessResponse struct {
	State           fairness.State `json:"state"`
	MostCompromised string         `json:"most_compromised,omitempty"`
	HighestDebt     float64        `json:"highest_debt"`
}

// PivotRequest asks for a duration change on a slot. A nil duration means
// re-evaluate the cascade as-is.
type PivotRequest struct {
	NewDurationMinutes *int `json:"new_duration_minutes,omitempty"`
}

// PivotResponse reports the cascade and, for apply calls, what it touched.
type PivotResponse struct {
	Result  *itinerary.CascadeResult    `json:"result"`
	Outcome *persistence.CascadeOutcome `json:"outcome,omitempty"`
}

// MicroStopResponse lists the stops proposed for a day.
type MicroStopResponse struct {
	Insertions []itinerary.Insertion `json:"insertions"`
}

// PersonaResponse is a user's persona snapshot, confidence descending.
type PersonaResponse struct {
	UserID     string                         `json:"user_id"`
	Dimensions []persistence.PersonaDimension `json:"dimensions"`
}

// TokenResponse returns a freshly minted token. This is the only response
// that ever carries the token value.
type TokenResponse struct {
	Token     string    `json:"token"`
	TripID    string    `json:"trip_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedeemResponse confirms an invite redemption.
type RedeemResponse struct {
	TripID string `json:"trip_id"`
	Role   string `json:"role"`
}

// SharedTripResponse is the read-only view a share token resolves to.
type SharedTripResponse struct {
	Trip  *persistence.Trip           `json:"trip"`
	Slots []persistence.ItinerarySlot `json:"slots"`
}

// RankRequest runs the post-filters over scored candidates.
type RankRequest struct {
	UserID     string              `json:"user_id"`
	Candidates []ranking.Candidate `json:"candidates"`
}

// RankResponse returns the final ordering.
type RankResponse struct {
	Candidates []ranking.Candidate `json:"candidates"`
}

// JobRunResponse reports an admin-triggered nightly run.
type JobRunResponse struct {
	Job     string `json:"job"`
	RunDate string `json:"run_date"`
	Status  string `json:"status"`
}
