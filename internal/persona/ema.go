package persona

import (
	"sort"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// EMA tuning.
const (
	// Alpha is the base smoothing factor per signal.
	Alpha = 0.3

	// ActiveBoostFactor multiplies alpha for mid-trip signals, capped at 1.
	ActiveBoostFactor = 3.0

	// Confidence clamp bounds.
	MinConfidence = 0.05
	MaxConfidence = 0.98

	// MinWindowSignals is the evidence floor: dimensions moved by fewer
	// window signals than this are left untouched.
	MinWindowSignals = 2

	// DefaultConfidence seeds dimensions the user has never expressed.
	DefaultConfidence = 0.30
)

// Action sets that choose the EMA target. Signal types outside both sets do
// not move dimensions at all.
var (
	positiveActions = map[string]bool{
		"slot_confirm":         true,
		"slot_complete":        true,
		"post_loved":           true,
		"discover_shortlist":   true,
		"discover_swipe_right": true,
	}
	negativeActions = map[string]bool{
		"slot_skip":          true,
		"slot_reject":        true,
		"post_disliked":      true,
		"discover_swipe_left": true,
	}
)

// Target returns the EMA target for a signal type: 1.0 for positive actions,
// 0.0 for negative ones. ok=false means the type carries no preference.
func Target(signalType string) (float64, bool) {
	if positiveActions[signalType] {
		return 1.0, true
	}
	if negativeActions[signalType] {
		return 0.0, true
	}
	return 0, false
}

// EffectiveAlpha returns the smoothing factor for a signal's trip phase.
// Mid-trip behavior is the strongest evidence, so active signals step 3x
// harder (capped at 1).
func EffectiveAlpha(tripPhase string) float64 {
	if tripPhase == persistence.PhaseActive {
		a := Alpha * ActiveBoostFactor
		if a > 1.0 {
			a = 1.0
		}
		return a
	}
	return Alpha
}

// Step applies one weighted EMA step to a confidence value:
// new = a·w·target + (1 − a·w)·current.
func Step(current, alpha, weight, target float64) float64 {
	aw := alpha * weight
	return aw*target + (1-aw)*current
}

func clampConfidence(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// Observation is one window signal resolved to its activity category.
type Observation struct {
	Category   string
	SignalType string
	TripPhase  string
}

// Existing is the user's current stored state for one dimension.
type Existing struct {
	Value      string
	Confidence float64
}

// Update is the computed upsert for one (user, dimension) row.
type Update struct {
	Dimension   string
	Value       string
	Confidence  float64
	SignalCount int
	Inserted    bool
}

// Accumulate folds one user's window observations into dimension updates.
// Observations must arrive in createdAt order; the fold is sequential so the
// result is deterministic for a fixed input. Existing rows keep their value;
// new dimensions take the table's positive value and start from the default
// confidence. Dimensions with fewer than MinWindowSignals observations are
// dropped. Unknown categories are returned for the caller to log.
func Accumulate(observations []Observation, current map[string]Existing) (updates []Update, unknownCategories []string) {
	type working struct {
		value      string
		confidence float64
		count      int
		inserted   bool
	}
	dims := map[string]*working{}
	unknownSeen := map[string]bool{}

	for _, obs := range observations {
		target, moves := Target(obs.SignalType)
		if !moves {
			continue
		}
		targets, known := TargetsFor(obs.Category)
		if !known {
			if !unknownSeen[obs.Category] {
				unknownSeen[obs.Category] = true
				unknownCategories = append(unknownCategories, obs.Category)
			}
			continue
		}
		alpha := EffectiveAlpha(obs.TripPhase)
		for _, tgt := range targets {
			w, ok := dims[tgt.Dimension]
			if !ok {
				w = &working{}
				if ex, exists := current[tgt.Dimension]; exists {
					w.value = ex.Value
					w.confidence = ex.Confidence
				} else {
					w.value = tgt.PositiveValue
					w.confidence = DefaultConfidence
					w.inserted = true
				}
				dims[tgt.Dimension] = w
			}
			w.confidence = Step(w.confidence, alpha, tgt.Weight, target)
			w.count++
		}
	}

	names := make([]string, 0, len(dims))
	for name, w := range dims {
		if w.count >= MinWindowSignals {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w := dims[name]
		updates = append(updates, Update{
			Dimension:   name,
			Value:       w.value,
			Confidence:  clampConfidence(w.confidence),
			SignalCount: w.count,
			Inserted:    w.inserted,
		})
	}
	sort.Strings(unknownCategories)
	return updates, unknownCategories
}
