// Package signal defines the behavioral event taxonomy and the write
// pipeline that routes accepted events to their consumers.
package signal

// Type is a taxonomy key for a behavioral event.
type Type string

// Explicit (tier 1) signal types.
const (
	TypeSlotConfirmed      Type = "slot_confirmed"
	TypeSlotRejected       Type = "slot_rejected"
	TypePreTripSlotSwap    Type = "pre_trip_slot_swap"
	TypePreTripSlotRemoved Type = "pre_trip_slot_removed"
)

// Strong implicit (tier 2) signal types.
const (
	TypeSlotLocked        Type = "slot_locked"
	TypePreTripSlotAdded  Type = "pre_trip_slot_added"
	TypePreTripReorder    Type = "pre_trip_reorder"
	TypeDiscoverShortlist Type = "discover_shortlist"
)

// Weak implicit (tier 3) signal types.
const (
	TypeCardViewed        Type = "card_viewed"
	TypeCardDismissed     Type = "card_dismissed"
	TypeSlotMoved         Type = "slot_moved"
	TypeDiscoverSwipeRight Type = "discover_swipe_right"
	TypeDiscoverSwipeLeft  Type = "discover_swipe_left"
)

// Passive (tier 4) signal types.
const (
	TypeCardImpression Type = "card_impression"
	TypePivotAccepted  Type = "pivot_accepted"
	TypePivotRejected  Type = "pivot_rejected"
	TypeDwellTime      Type = "dwell_time"
)

// Training weights per tier.
const (
	WeightExplicit       = 1.0
	WeightStrongImplicit = 0.7
	WeightWeakImplicit   = 0.3
	WeightPassive        = 0.1
)

// Polarity classifies the preference direction of a signal type.
type Polarity int

const (
	Neutral Polarity = iota
	Positive
	Negative
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "neutral"
	}
}

// tierWeights holds the full fixed taxonomy. A type absent from this map is
// unknown and scores the passive weight.
var tierWeights = map[Type]float64{
	TypeSlotConfirmed:      WeightExplicit,
	TypeSlotRejected:       WeightExplicit,
	TypePreTripSlotSwap:    WeightExplicit,
	TypePreTripSlotRemoved: WeightExplicit,

	TypeSlotLocked:        WeightStrongImplicit,
	TypePreTripSlotAdded:  WeightStrongImplicit,
	TypePreTripReorder:    WeightStrongImplicit,
	TypeDiscoverShortlist: WeightStrongImplicit,

	TypeCardViewed:         WeightWeakImplicit,
	TypeCardDismissed:      WeightWeakImplicit,
	TypeSlotMoved:          WeightWeakImplicit,
	TypeDiscoverSwipeRight: WeightWeakImplicit,
	TypeDiscoverSwipeLeft:  WeightWeakImplicit,

	TypeCardImpression: WeightPassive,
	TypePivotAccepted:  WeightPassive,
	TypePivotRejected:  WeightPassive,
	TypeDwellTime:      WeightPassive,
}

// polarities lists every non-neutral type exactly once. A type may not carry
// both polarities.
var polarities = map[Type]Polarity{
	TypeSlotConfirmed:      Positive,
	TypeSlotLocked:         Positive,
	TypePreTripSlotAdded:   Positive,
	TypeDiscoverShortlist:  Positive,
	TypeDiscoverSwipeRight: Positive,
	TypePivotAccepted:      Positive,

	TypeSlotRejected:       Negative,
	TypePreTripSlotRemoved: Negative,
	TypeDiscoverSwipeLeft:  Negative,
	TypePivotRejected:      Negative,
	TypeCardDismissed:      Negative,
}

// TrainingWeight returns the tier weight for t. Unknown types default to the
// passive weight rather than erroring so that forward-compatible clients can
// emit new types ahead of a taxonomy update.
func TrainingWeight(t Type) float64 {
	if w, ok := tierWeights[t]; ok {
		return w
	}
	return WeightPassive
}

// PolarityOf returns the preference direction of t.
func PolarityOf(t Type) Polarity {
	return polarities[t]
}

// Known reports whether t is part of the fixed taxonomy.
func Known(t Type) bool {
	_, ok := tierWeights[t]
	return ok
}

// All returns every type in the taxonomy. Order is unspecified.
func All() []Type {
	out := make([]Type, 0, len(tierWeights))
	for t := range tierWeights {
		out = append(out, t)
	}
	return out
}
