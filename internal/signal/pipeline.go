package signal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// Per-record weight bounds enforced by the write contract.
const (
	MinWeight = -1.0
	MaxWeight = 3.0
)

// InputError is a write-contract violation. Transports map it to a 4xx
// envelope; it is never retried.
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func inputErrf(format string, args ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// Store is the append-only signal sink plus the off-plan dedup probe.
type Store interface {
	Insert(ctx context.Context, s *persistence.BehavioralSignal) error
	HasOffPlanNode(ctx context.Context, userID, tripID, nodeID string) (bool, error)
}

// IntentionStore records intention rows. Implementations enforce the
// one-per-(signal,source) rule and explicit-over-heuristic suppression.
type IntentionStore interface {
	Record(ctx context.Context, i *persistence.IntentionSignal) error
}

// IngestionQueue receives unmatched off-plan places.
type IngestionQueue interface {
	Enqueue(ctx context.Context, req *persistence.IngestionRequest) error
}

// Counters is the pipeline's metrics surface.
type Counters interface {
	SignalRecorded(signalType, tripPhase string)
	OffPlanOutcome(outcome string)
}

// NopCounters satisfies Counters for callers that do not meter.
type NopCounters struct{}

func (NopCounters) SignalRecorded(string, string) {}
func (NopCounters) OffPlanOutcome(string)         {}

// RecordInput is the write contract for one behavioral signal.
type RecordInput struct {
	UserID         string   `json:"user_id"`
	TripID         string   `json:"trip_id,omitempty"`
	ActivityNodeID string   `json:"activity_node_id,omitempty"`
	SlotID         string   `json:"slot_id,omitempty"`
	SignalType     Type     `json:"signal_type"`
	SignalValue    string   `json:"signal_value"`
	TripPhase      string   `json:"trip_phase"`
	RawAction      string   `json:"raw_action"`
	Source         string   `json:"source,omitempty"`
	Subflow        string   `json:"subflow,omitempty"`
	SignalWeight   *float64 `json:"-"`
}

// Pipeline validates writes and routes accepted signals to their consumers:
// the signal store, the intention recorder, and the counters. Off-plan adds
// additionally consult the dedup index (see OffPlanAdd).
type Pipeline struct {
	store      Store
	intentions IntentionStore
	queue      IngestionQueue
	counters   Counters
}

// NewPipeline wires the pipeline's consumers. counters may be nil.
func NewPipeline(store Store, intentions IntentionStore, queue IngestionQueue, counters Counters) *Pipeline {
	if counters == nil {
		counters = NopCounters{}
	}
	return &Pipeline{store: store, intentions: intentions, queue: queue, counters: counters}
}

var validPhases = map[string]bool{
	persistence.PhasePreTrip:  true,
	persistence.PhaseActive:   true,
	persistence.PhasePostTrip: true,
}

func validateUUID(field, v string) error {
	if _, err := uuid.Parse(v); err != nil {
		return inputErrf("%s: malformed id %q", field, v)
	}
	return nil
}

// Validate checks the write contract without touching storage.
func (in *RecordInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return inputErrf("user_id: required")
	}
	if err := validateUUID("user_id", in.UserID); err != nil {
		return err
	}
	for field, v := range map[string]string{
		"trip_id":          in.TripID,
		"activity_node_id": in.ActivityNodeID,
		"slot_id":          in.SlotID,
	} {
		if v == "" {
			continue
		}
		if err := validateUUID(field, v); err != nil {
			return err
		}
	}
	if !Known(in.SignalType) {
		return inputErrf("signal_type: unknown type %q", in.SignalType)
	}
	if strings.TrimSpace(in.SignalValue) == "" {
		return inputErrf("signal_value: required")
	}
	if !validPhases[in.TripPhase] {
		return inputErrf("trip_phase: invalid phase %q", in.TripPhase)
	}
	if strings.TrimSpace(in.RawAction) == "" {
		return inputErrf("raw_action: required")
	}
	if in.SignalWeight != nil && (*in.SignalWeight < MinWeight || *in.SignalWeight > MaxWeight) {
		return inputErrf("signal_weight: %.2f outside [%.1f, %.1f]", *in.SignalWeight, MinWeight, MaxWeight)
	}
	return nil
}

// Record validates in, appends the signal, derives a heuristic intention for
// non-neutral types, and bumps counters. The returned entity carries the
// generated id.
func (p *Pipeline) Record(ctx context.Context, in RecordInput) (*persistence.BehavioralSignal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = persistence.SourceUserBehavioral
	}
	weight := TrainingWeight(in.SignalType)
	if in.SignalWeight != nil {
		weight = *in.SignalWeight
	}

	sig := &persistence.BehavioralSignal{
		UserID:       in.UserID,
		SignalType:   string(in.SignalType),
		SignalValue:  strings.TrimSpace(in.SignalValue),
		TripPhase:    in.TripPhase,
		RawAction:    in.RawAction,
		Source:       source,
		SignalWeight: weight,
		CreatedAt:    time.Now().UTC(),
	}
	if in.TripID != "" {
		sig.TripID = &in.TripID
	}
	if in.ActivityNodeID != "" {
		sig.ActivityNodeID = &in.ActivityNodeID
	}
	if in.SlotID != "" {
		sig.SlotID = &in.SlotID
	}
	if in.Subflow != "" {
		sig.Subflow = &in.Subflow
	}

	if err := p.store.Insert(ctx, sig); err != nil {
		return nil, fmt.Errorf("insert signal: %w", err)
	}
	p.counters.SignalRecorded(sig.SignalType, sig.TripPhase)

	if err := p.inferIntention(ctx, sig); err != nil {
		// Inference is best-effort bookkeeping; the signal is already durable.
		log.Warn().Err(err).Str("signal_id", sig.ID).Msg("intention inference failed")
	}
	return sig, nil
}

// inferIntention derives a rule-heuristic intention from signal polarity.
// Explicit feedback rows recorded via RecordExplicitIntention suppress these
// at the store layer.
func (p *Pipeline) inferIntention(ctx context.Context, sig *persistence.BehavioralSignal) error {
	pol := PolarityOf(Type(sig.SignalType))
	if pol == Neutral {
		return nil
	}
	return p.intentions.Record(ctx, &persistence.IntentionSignal{
		BehavioralSignalID: sig.ID,
		IntentionType:      "preference",
		IntentionValue:     pol.String(),
		Confidence:         TrainingWeight(Type(sig.SignalType)),
		Source:             persistence.SourceRuleHeuristic,
		CreatedAt:          time.Now().UTC(),
	})
}

// RecordExplicitIntention stores user-stated intent for a signal. Confidence
// is clamped to [0, 1].
func (p *Pipeline) RecordExplicitIntention(ctx context.Context, behavioralSignalID, intentionType, intentionValue string, confidence float64) error {
	if strings.TrimSpace(behavioralSignalID) == "" {
		return inputErrf("behavioral_signal_id: required")
	}
	if err := validateUUID("behavioral_signal_id", behavioralSignalID); err != nil {
		return err
	}
	if strings.TrimSpace(intentionType) == "" {
		return inputErrf("intention_type: required")
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return p.intentions.Record(ctx, &persistence.IntentionSignal{
		BehavioralSignalID: behavioralSignalID,
		IntentionType:      intentionType,
		IntentionValue:     intentionValue,
		Confidence:         confidence,
		Source:             persistence.SourceExplicitFeedback,
		CreatedAt:          time.Now().UTC(),
	})
}
