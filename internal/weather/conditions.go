// Package weather fetches current conditions from the upstream provider,
// caches verbatim payloads, and classifies outdoor risk. Every failure mode
// degrades to "no data": weather never fails a caller.
package weather

import "math"

// Condition is the coarse condition class derived from provider codes.
type Condition string

const (
	ConditionStorm   Condition = "storm"
	ConditionDrizzle Condition = "drizzle"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionClear   Condition = "clear"
)

// Classify maps a provider condition code to its class. Codes outside the
// known ranges read as clear.
func Classify(code int) Condition {
	switch {
	case code >= 200 && code <= 232:
		return ConditionStorm
	case code >= 300 && code <= 321:
		return ConditionDrizzle
	case code >= 500 && code <= 531:
		return ConditionRain
	case code >= 600 && code <= 622:
		return ConditionSnow
	default:
		return ConditionClear
	}
}

// Wet reports whether the condition argues against unsheltered activity.
// Snow deliberately does not: snowy sightseeing is a feature.
func (c Condition) Wet() bool {
	return c == ConditionRain || c == ConditionDrizzle || c == ConditionStorm
}

// CelsiusFromKelvin converts provider Kelvin to Celsius at one decimal.
func CelsiusFromKelvin(k float64) float64 {
	return math.Round((k-273.15)*10) / 10
}

// outdoorCategories are the activity categories exposed to weather.
var outdoorCategories = map[string]bool{
	"outdoors": true,
	"active":   true,
}

// RiskFor reports outdoor risk: an exposed category under wet conditions.
func RiskFor(category string, c Condition) bool {
	return outdoorCategories[category] && c.Wet()
}
