// Package persona maps behavioral activity into preference dimensions and
// applies the weighted EMA the nightly updater runs per user.
package persona

// DimensionTarget says how one activity category moves one dimension: which
// value a positive signal argues for and how strongly the category speaks.
type DimensionTarget struct {
	Dimension     string
	PositiveValue string
	Weight        float64
}

// categoryTargets is the fixed category→dimension table. A category can move
// several dimensions with different strengths.
var categoryTargets = map[string][]DimensionTarget{
	"restaurant": {{Dimension: "food_priority", PositiveValue: "food_driven", Weight: 1.0}},
	"cafe":       {{Dimension: "food_priority", PositiveValue: "food_driven", Weight: 0.6}},
	"bar":        {{Dimension: "nightlife_preference", PositiveValue: "night_owl", Weight: 0.8}},
	"museum":     {{Dimension: "culture_preference", PositiveValue: "culture_driven", Weight: 1.0}},
	"gallery":    {{Dimension: "culture_preference", PositiveValue: "culture_driven", Weight: 0.8}},
	"landmark": {
		{Dimension: "culture_preference", PositiveValue: "culture_driven", Weight: 0.6},
		{Dimension: "pace_preference", PositiveValue: "sightseer", Weight: 0.4},
	},
	"hike": {
		{Dimension: "nature_preference", PositiveValue: "nature_driven", Weight: 1.0},
		{Dimension: "energy_level", PositiveValue: "high_energy", Weight: 0.7},
	},
	"park": {{Dimension: "nature_preference", PositiveValue: "nature_driven", Weight: 0.6}},
	"beach": {
		{Dimension: "nature_preference", PositiveValue: "nature_driven", Weight: 0.7},
		{Dimension: "pace_preference", PositiveValue: "relaxed", Weight: 0.5},
	},
	"tour":     {{Dimension: "pace_preference", PositiveValue: "sightseer", Weight: 0.7}},
	"shopping": {{Dimension: "shopping_preference", PositiveValue: "shopper", Weight: 1.0}},
	"spa":      {{Dimension: "pace_preference", PositiveValue: "relaxed", Weight: 1.0}},
	"club": {
		{Dimension: "nightlife_preference", PositiveValue: "night_owl", Weight: 1.0},
		{Dimension: "energy_level", PositiveValue: "high_energy", Weight: 0.5},
	},
}

// TargetsFor returns the dimension targets for a category. ok=false marks an
// unknown category, which inside a batch run is a contract violation to log
// and skip, never to fail on.
func TargetsFor(category string) ([]DimensionTarget, bool) {
	t, ok := categoryTargets[category]
	return t, ok
}

// Categories returns every mapped category. Order is unspecified.
func Categories() []string {
	out := make([]string, 0, len(categoryTargets))
	for c := range categoryTargets {
		out = append(out, c)
	}
	return out
}
