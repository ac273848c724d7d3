// Package persistence defines the storage entities and repository contracts
// for the itinerary core. Implementations live in persistence/postgres.
package persistence

import (
	"context"
	"encoding/json"
	"time"
)

// TimeWindow is a half-open UTC interval [From, To) used by windowed queries.
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Trip is the read-mostly trip aggregate. The core mutates only
// FairnessState (via FairnessRepo) and slots (via SlotRepo).
type Trip struct {
	ID            string          `json:"id" db:"id"`
	Mode          string          `json:"mode" db:"mode"`
	City          string          `json:"city" db:"city"`
	Timezone      string          `json:"timezone" db:"timezone"`
	StartDate     time.Time       `json:"start_date" db:"start_date"`
	EndDate       time.Time       `json:"end_date" db:"end_date"`
	Status        string          `json:"status" db:"status"`
	FairnessState json.RawMessage `json:"-" db:"fairness_state"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// TripMember binds a user to a trip with a role that gates mutations.
type TripMember struct {
	TripID    string    `json:"trip_id" db:"trip_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Member roles.
const (
	RoleOrganizer = "organizer"
	RoleMember    = "member"
)

// ActivityNode is a canonical venue or experience. The core reads nodes for
// ranking, cascade and spatial queries; the nightly write-back mutates the
// behavioral counters.
type ActivityNode struct {
	ID                     string    `json:"id" db:"id"`
	Name                   string    `json:"name" db:"name"`
	Category               string    `json:"category" db:"category"`
	Lat                    float64   `json:"lat" db:"lat"`
	Lon                    float64   `json:"lon" db:"lon"`
	ConvergenceScore       float64   `json:"convergence_score" db:"convergence_score"`
	TouristScore           float64   `json:"tourist_score" db:"tourist_score"`
	CantMiss               bool      `json:"cant_miss" db:"cant_miss"`
	IsCanonical            bool      `json:"is_canonical" db:"is_canonical"`
	ImpressionCount        int64     `json:"impression_count" db:"impression_count"`
	AcceptanceCount        int64     `json:"acceptance_count" db:"acceptance_count"`
	BehavioralQualityScore float64   `json:"behavioral_quality_score" db:"behavioral_quality_score"`
	Status                 string    `json:"status" db:"status"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// ItinerarySlot is one positioned unit of a day's itinerary. Times are UTC;
// day boundaries follow the trip's IANA timezone.
type ItinerarySlot struct {
	ID              string    `json:"id" db:"id"`
	TripID          string    `json:"trip_id" db:"trip_id"`
	ActivityNodeID  *string   `json:"activity_node_id,omitempty" db:"activity_node_id"`
	DayNumber       int       `json:"day_number" db:"day_number"`
	SortOrder       int       `json:"sort_order" db:"sort_order"`
	SlotType        string    `json:"slot_type" db:"slot_type"`
	Status          string    `json:"status" db:"status"`
	StartTime       time.Time `json:"start_time" db:"start_time"`
	EndTime         time.Time `json:"end_time" db:"end_time"`
	DurationMinutes *int      `json:"duration_minutes,omitempty" db:"duration_minutes"`
	IsLocked        bool      `json:"is_locked" db:"is_locked"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Slot types.
const (
	SlotTypeAnchor  = "anchor"
	SlotTypeMeal    = "meal"
	SlotTypeFlex    = "flex"
	SlotTypeTransit = "transit"
)

// Slot statuses the core branches on. Completed and skipped are terminal.
const (
	SlotStatusProposed  = "proposed"
	SlotStatusConfirmed = "confirmed"
	SlotStatusCompleted = "completed"
	SlotStatusSkipped   = "skipped"
)

// Terminal reports whether a slot status excludes the slot from cascades.
func Terminal(status string) bool {
	return status == SlotStatusCompleted || status == SlotStatusSkipped
}

// BehavioralSignal is one append-only behavioral event. SignalWeight is
// server-side only and never serializes into client payloads.
type BehavioralSignal struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	TripID         *string   `json:"trip_id,omitempty" db:"trip_id"`
	ActivityNodeID *string   `json:"activity_node_id,omitempty" db:"activity_node_id"`
	SlotID         *string   `json:"slot_id,omitempty" db:"slot_id"`
	SignalType     string    `json:"signal_type" db:"signal_type"`
	SignalValue    string    `json:"signal_value" db:"signal_value"`
	TripPhase      string    `json:"trip_phase" db:"trip_phase"`
	RawAction      string    `json:"raw_action" db:"raw_action"`
	Source         string    `json:"source" db:"source"`
	Subflow        *string   `json:"subflow,omitempty" db:"subflow"`
	SignalWeight   float64   `json:"-" db:"signal_weight"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Trip phases.
const (
	PhasePreTrip  = "pre_trip"
	PhaseActive   = "active"
	PhasePostTrip = "post_trip"
)

// Signal sources.
const (
	SourceUserBehavioral   = "user_behavioral"
	SourceExplicitFeedback = "explicit_feedback"
	SourceRuleHeuristic    = "rule_heuristic"
	SourceSynthetic        = "synthetic"
	SourceBehavioralEMA    = "behavioral_ema"
)

// IntentionSignal refines a behavioral signal with inferred or explicit
// intent. At most one row exists per (behavioralSignalId, source).
type IntentionSignal struct {
	ID                 string    `json:"id" db:"id"`
	BehavioralSignalID string    `json:"behavioral_signal_id" db:"behavioral_signal_id"`
	IntentionType      string    `json:"intention_type" db:"intention_type"`
	IntentionValue     string    `json:"intention_value" db:"intention_value"`
	Confidence         float64   `json:"confidence" db:"confidence"`
	Source             string    `json:"source" db:"source"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// PersonaDimension is one (user, dimension) preference row upserted by the
// nightly EMA job and read back for snapshots.
type PersonaDimension struct {
	UserID     string    `json:"user_id" db:"user_id"`
	Dimension  string    `json:"dimension" db:"dimension"`
	Value      string    `json:"value" db:"value"`
	Confidence float64   `json:"confidence" db:"confidence"`
	Source     string    `json:"source" db:"source"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// IngestionRequest queues an off-plan place the entity resolver could not
// match, keyed by the trimmed original name.
type IngestionRequest struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TripID    string    `json:"trip_id" db:"trip_id"`
	PlaceName string    `json:"place_name" db:"place_name"`
	PlaceKey  string    `json:"place_key" db:"place_key"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ShadowResult is one append-only shadow-ranking evaluation row.
type ShadowResult struct {
	ID                 int64     `json:"id" db:"id"`
	ModelID            string    `json:"model_id" db:"model_id"`
	ModelVersion       string    `json:"model_version" db:"model_version"`
	UserID             string    `json:"user_id" db:"user_id"`
	ShadowRankings     string    `json:"shadow_rankings" db:"shadow_rankings"`
	ProductionRankings string    `json:"production_rankings" db:"production_rankings"`
	OverlapAt5         float64   `json:"overlap_at_5" db:"overlap_at_5"`
	NDCGAt10           float64   `json:"ndcg_at_10" db:"ndcg_at_10"`
	LatencyMs          int64     `json:"latency_ms" db:"latency_ms"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// InviteToken grants one-time trip membership. Role is always member.
type InviteToken struct {
	ID        string     `json:"id" db:"id"`
	TripID    string     `json:"trip_id" db:"trip_id"`
	Token     string     `json:"-" db:"token"`
	Role      string     `json:"role" db:"role"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ShareToken grants read-only trip access until expiry.
type ShareToken struct {
	ID        string     `json:"id" db:"id"`
	TripID    string     `json:"trip_id" db:"trip_id"`
	Token     string     `json:"-" db:"token"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// CategorySignal is the persona job's join row: one window signal resolved
// to its activity category.
type CategorySignal struct {
	UserID     string `json:"user_id" db:"user_id"`
	Category   string `json:"category" db:"category"`
	SignalType string `json:"signal_type" db:"signal_type"`
	TripPhase  string `json:"trip_phase" db:"trip_phase"`
}

// SignalRepo persists behavioral signals and answers the off-plan dedup
// probe for matched venues.
type SignalRepo interface {
	// Insert appends one signal and fills in its generated id.
	Insert(ctx context.Context, s *BehavioralSignal) error

	// HasOffPlanNode reports whether an off-plan signal already exists for
	// the (user, trip, node) triple.
	HasOffPlanNode(ctx context.Context, userID, tripID, nodeID string) (bool, error)
}

// IntentionRepo persists intention signals with suppression semantics:
// an explicit_feedback row blocks later rule_heuristic rows for the same
// behavioral signal, and duplicate (signal, source) pairs are no-ops.
type IntentionRepo interface {
	Record(ctx context.Context, i *IntentionSignal) error
}

// IngestionRepo queues unmatched off-plan places.
type IngestionRepo interface {
	// Enqueue inserts a pending request. Returns ErrDuplicate when the
	// (user, trip, placeKey) triple is already queued.
	Enqueue(ctx context.Context, req *IngestionRequest) error
}

// SlotUpdate is one cascade row mutation.
type SlotUpdate struct {
	SlotID    string    `json:"slot_id"`
	NewStart  time.Time `json:"new_start"`
	NewEnd    time.Time `json:"new_end"`
	SortOrder int       `json:"sort_order"`
}

// CascadeOutcome reports what a cascade application actually touched.
type CascadeOutcome struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// SlotRepo reads and mutates itinerary slots.
type SlotRepo interface {
	// Get returns one slot by id.
	Get(ctx context.Context, slotID string) (*ItinerarySlot, error)

	// ListDay returns a day's slots ordered by sortOrder ascending.
	ListDay(ctx context.Context, tripID string, dayNumber int) ([]ItinerarySlot, error)

	// ListTrip returns all slots of a trip ordered by (dayNumber, sortOrder).
	ListTrip(ctx context.Context, tripID string) ([]ItinerarySlot, error)

	// ApplyCascade applies the updates in one transaction. Rows that became
	// locked or terminal since evaluation are skipped and counted.
	ApplyCascade(ctx context.Context, updates []SlotUpdate) (CascadeOutcome, error)

	// InsertProposed inserts a proposed slot at its sortOrder, shifting
	// same-day slots at or after that position by +1, in one transaction.
	InsertProposed(ctx context.Context, slot *ItinerarySlot) error

	// HasScheduledNode reports whether a node is already scheduled on the
	// given trip day.
	HasScheduledNode(ctx context.Context, tripID string, dayNumber int, nodeID string) (bool, error)
}

// CorridorQuery bounds the micro-stop spatial candidate search. TripID and
// DayNumber exclude nodes already scheduled on that day.
type CorridorQuery struct {
	TripID                         string
	DayNumber                      int
	OriginLat, OriginLon           float64
	DestinationLat, DestinationLon float64
	BufferMeters                   float64
	MinConvergence                 float64
	ExcludeNodeIDs                 []string
	Limit                          int
}

// NodeRepo reads activity nodes.
type NodeRepo interface {
	// Get returns one node by id.
	Get(ctx context.Context, nodeID string) (*ActivityNode, error)

	// CorridorCandidates returns approved canonical nodes inside the buffered
	// origin→destination corridor, convergence descending.
	CorridorCandidates(ctx context.Context, q CorridorQuery) ([]ActivityNode, error)
}

// PersonaRepo reads persona dimensions for snapshots.
type PersonaRepo interface {
	// Snapshot returns every dimension for a user, confidence descending.
	Snapshot(ctx context.Context, userID string) ([]PersonaDimension, error)
}

// FairnessRepo owns the per-trip fairness state blob.
type FairnessRepo interface {
	// Mutate loads the trip's state under a row lock, applies fn, and stores
	// the returned blob, all in one transaction. fn receives the raw stored
	// JSON (nil when unset) and returns the replacement.
	Mutate(ctx context.Context, tripID string, fn func(raw []byte) ([]byte, error)) error

	// Get returns the raw stored state, nil when unset.
	Get(ctx context.Context, tripID string) ([]byte, error)
}

// TripRepo reads trip aggregates.
type TripRepo interface {
	Get(ctx context.Context, tripID string) (*Trip, error)

	// MemberRole returns the caller's role on the trip, or ErrNotFound.
	MemberRole(ctx context.Context, tripID, userID string) (string, error)

	// AddMember inserts a membership row; duplicate membership is a no-op.
	AddMember(ctx context.Context, m *TripMember) error

	// CompletedTripCount returns how many completed trips a user has.
	CompletedTripCount(ctx context.Context, userID string) (int, error)
}

// ShadowRepo appends shadow-ranking evaluation rows.
type ShadowRepo interface {
	// EnsureSchema creates the results table when absent.
	EnsureSchema(ctx context.Context) error

	Insert(ctx context.Context, r *ShadowResult) error
}

// TokenRepo persists invite and share tokens. Lookups are by token value;
// all miss variants collapse to ErrNotFound so callers stay oracle-free.
type TokenRepo interface {
	CreateInvite(ctx context.Context, t *InviteToken) error
	CreateShare(ctx context.Context, t *ShareToken) error

	// RedeemInvite atomically loads a live invite by token value and marks it
	// used. Expired, revoked, used or unknown tokens return ErrNotFound.
	RedeemInvite(ctx context.Context, token string, now time.Time) (*InviteToken, error)

	// ResolveShare returns the live share token. Expired, revoked or unknown
	// tokens return ErrNotFound.
	ResolveShare(ctx context.Context, token string, now time.Time) (*ShareToken, error)
}
