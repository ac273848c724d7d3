// Package itinerary re-plans slot timing after pivots and proposes
// micro-stops along transit corridors.
package itinerary

import (
	"sort"
	"time"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// CascadeResult is the pure outcome of evaluating a pivot's time shift.
// Times in Updates are UTC; Timezone is the trip zone clients derive local
// renderings from.
type CascadeResult struct {
	PivotSlotID           string                   `json:"pivot_slot_id"`
	DayNumber             int                      `json:"day_number"`
	DeltaMinutes          int                      `json:"delta_minutes"`
	Timezone              string                   `json:"timezone"`
	Updates               []persistence.SlotUpdate `json:"updates"`
	AffectedSlotIDs       []string                 `json:"affected_slot_ids"`
	CrossDayImpact        bool                     `json:"cross_day_impact"`
	CrossDayPivotRequired bool                     `json:"cross_day_pivot_required"`
	Warning               string                   `json:"warning,omitempty"`
}

// EvaluateCascade computes the downstream shifts a duration change forces.
// It never mutates storage. daySlots are the pivot day's slots, nextDaySlots
// the following day's (both any order). Unknown durations yield a no-op with
// a warning. Shift arithmetic is pure UTC; an unresolvable tz falls back to
// UTC in the echoed Timezone.
func EvaluateCascade(pivot persistence.ItinerarySlot, newDurationMinutes *int, daySlots, nextDaySlots []persistence.ItinerarySlot, tz string) CascadeResult {
	if _, err := time.LoadLocation(tz); err != nil || tz == "" {
		tz = "UTC"
	}
	res := CascadeResult{PivotSlotID: pivot.ID, DayNumber: pivot.DayNumber, Timezone: tz}

	if pivot.DurationMinutes == nil || newDurationMinutes == nil {
		res.Warning = "duration unknown, cascade skipped"
		return res
	}
	delta := *newDurationMinutes - *pivot.DurationMinutes
	res.DeltaMinutes = delta
	if delta == 0 {
		return res
	}
	shift := time.Duration(delta) * time.Minute

	downstream := make([]persistence.ItinerarySlot, 0, len(daySlots))
	for _, s := range daySlots {
		if s.DayNumber != pivot.DayNumber || s.SortOrder <= pivot.SortOrder {
			continue
		}
		if s.IsLocked || persistence.Terminal(s.Status) {
			continue
		}
		downstream = append(downstream, s)
	}
	sort.Slice(downstream, func(i, j int) bool { return downstream[i].SortOrder < downstream[j].SortOrder })

	res.Updates = make([]persistence.SlotUpdate, 0, len(downstream))
	res.AffectedSlotIDs = make([]string, 0, len(downstream))
	for _, s := range downstream {
		res.Updates = append(res.Updates, persistence.SlotUpdate{
			SlotID:    s.ID,
			NewStart:  s.StartTime.Add(shift).UTC(),
			NewEnd:    s.EndTime.Add(shift).UTC(),
			SortOrder: s.SortOrder,
		})
		res.AffectedSlotIDs = append(res.AffectedSlotIDs, s.ID)
	}

	if delta > 0 {
		res.CrossDayImpact, res.CrossDayPivotRequired = crossDayImpact(pivot.DayNumber, shift, daySlots, nextDaySlots)
	}
	return res
}

// crossDayImpact checks whether pushing the day later collides with the next
// day's first slot. The pushed day ends at its last non-completed endTime
// plus the shift.
func crossDayImpact(dayNumber int, shift time.Duration, daySlots, nextDaySlots []persistence.ItinerarySlot) (bool, bool) {
	var lastEnd time.Time
	var found bool
	for _, s := range daySlots {
		if s.DayNumber != dayNumber || s.Status == persistence.SlotStatusCompleted {
			continue
		}
		if !found || s.EndTime.After(lastEnd) {
			lastEnd = s.EndTime
			found = true
		}
	}
	if !found {
		return false, false
	}
	dayEnd := lastEnd.Add(shift)
	for _, s := range nextDaySlots {
		if s.DayNumber != dayNumber+1 {
			continue
		}
		if s.StartTime.Before(dayEnd) {
			return true, true
		}
	}
	return false, false
}
