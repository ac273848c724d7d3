package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
	"github.com/kevindtbd/overplanned-sub003/internal/slug"
)

// OffPlanWeight is the boosted per-record weight for a confirmed off-plan
// add: the user went out of their way mid-trip, which outranks a plain
// confirmation.
const OffPlanWeight = 1.4

// SubflowOnTheFlyAdd tags signals written by the off-plan sub-flow.
const SubflowOnTheFlyAdd = "onthefly_add"

// Off-plan outcomes.
const (
	OffPlanRecorded  = "recorded"
	OffPlanQueued    = "queued"
	OffPlanDuplicate = "duplicate"
)

// Resolver matches a free-text place name against the activity corpus.
// ok=false means no canonical node exists for the name.
type Resolver interface {
	Resolve(ctx context.Context, tripID, placeName string) (nodeID string, ok bool, err error)
}

// OffPlanInput describes a mid-trip spontaneous add.
type OffPlanInput struct {
	UserID    string `json:"user_id"`
	TripID    string `json:"trip_id"`
	PlaceName string `json:"place_name"`
}

// OffPlanResult is the typed outcome of an off-plan add. Duplicate is a
// success: the caller's venue was already recorded.
type OffPlanResult struct {
	Type           string `json:"type"`
	ActivityNodeID string `json:"activity_node_id,omitempty"`
	SignalID       string `json:"signal_id,omitempty"`
	PlaceKey       string `json:"place_key,omitempty"`
}

func (in *OffPlanInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return inputErrf("user_id: required")
	}
	if err := validateUUID("user_id", in.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(in.TripID) == "" {
		return inputErrf("trip_id: required")
	}
	if err := validateUUID("trip_id", in.TripID); err != nil {
		return err
	}
	if strings.TrimSpace(in.PlaceName) == "" {
		return inputErrf("place_name: required")
	}
	return nil
}

// OffPlanAdd handles a spontaneous mid-trip venue add. Matched names write a
// boosted slot_confirmed signal; unmatched names queue an ingestion request.
// At most one off-plan record exists per (user, trip, venue); repeats return
// a duplicate outcome without writing.
func (p *Pipeline) OffPlanAdd(ctx context.Context, resolver Resolver, in OffPlanInput) (*OffPlanResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.PlaceName)

	nodeID, matched, err := resolver.Resolve(ctx, in.TripID, name)
	if err != nil {
		return nil, fmt.Errorf("resolve place %q: %w", name, err)
	}

	if !matched {
		return p.queueUnmatched(ctx, in, name)
	}

	exists, err := p.store.HasOffPlanNode(ctx, in.UserID, in.TripID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("off-plan dedup probe: %w", err)
	}
	if exists {
		p.counters.OffPlanOutcome(OffPlanDuplicate)
		return &OffPlanResult{Type: OffPlanDuplicate, ActivityNodeID: nodeID}, nil
	}

	subflow := SubflowOnTheFlyAdd
	weight := OffPlanWeight
	sig := &persistence.BehavioralSignal{
		UserID:         in.UserID,
		TripID:         &in.TripID,
		ActivityNodeID: &nodeID,
		SignalType:     string(TypeSlotConfirmed),
		SignalValue:    name,
		TripPhase:      persistence.PhaseActive,
		RawAction:      "off_plan_add:" + slug.Make(name),
		Source:         persistence.SourceUserBehavioral,
		Subflow:        &subflow,
		SignalWeight:   weight,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.store.Insert(ctx, sig); err != nil {
		return nil, fmt.Errorf("insert off-plan signal: %w", err)
	}
	p.counters.SignalRecorded(sig.SignalType, sig.TripPhase)
	p.counters.OffPlanOutcome(OffPlanRecorded)
	return &OffPlanResult{Type: OffPlanRecorded, ActivityNodeID: nodeID, SignalID: sig.ID}, nil
}

func (p *Pipeline) queueUnmatched(ctx context.Context, in OffPlanInput, name string) (*OffPlanResult, error) {
	key := strings.ToLower(name)
	req := &persistence.IngestionRequest{
		UserID:    in.UserID,
		TripID:    in.TripID,
		PlaceName: name,
		PlaceKey:  key,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	err := p.queue.Enqueue(ctx, req)
	if errors.Is(err, persistence.ErrDuplicate) {
		p.counters.OffPlanOutcome(OffPlanDuplicate)
		return &OffPlanResult{Type: OffPlanDuplicate, PlaceKey: key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue ingestion request: %w", err)
	}
	p.counters.OffPlanOutcome(OffPlanQueued)
	return &OffPlanResult{Type: OffPlanQueued, PlaceKey: key}, nil
}
