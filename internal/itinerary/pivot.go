package itinerary

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// PivotService evaluates and applies cascades around slot swaps.
type PivotService struct {
	slots persistence.SlotRepo
	trips persistence.TripRepo
}

// NewPivotService returns a service over the given repositories.
func NewPivotService(slots persistence.SlotRepo, trips persistence.TripRepo) *PivotService {
	return &PivotService{slots: slots, trips: trips}
}

// Evaluate computes the cascade a duration change would force, without
// writing anything.
func (s *PivotService) Evaluate(ctx context.Context, slotID string, newDurationMinutes *int) (*CascadeResult, error) {
	pivot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load pivot slot: %w", err)
	}
	trip, err := s.trips.Get(ctx, pivot.TripID)
	if err != nil {
		return nil, fmt.Errorf("load trip: %w", err)
	}
	daySlots, err := s.slots.ListDay(ctx, pivot.TripID, pivot.DayNumber)
	if err != nil {
		return nil, fmt.Errorf("list day %d: %w", pivot.DayNumber, err)
	}
	nextDaySlots, err := s.slots.ListDay(ctx, pivot.TripID, pivot.DayNumber+1)
	if err != nil {
		return nil, fmt.Errorf("list day %d: %w", pivot.DayNumber+1, err)
	}

	res := EvaluateCascade(*pivot, newDurationMinutes, daySlots, nextDaySlots, trip.Timezone)
	if res.Warning != "" {
		log.Warn().Str("slot_id", slotID).Str("warning", res.Warning).Msg("cascade no-op")
	}
	return &res, nil
}

// Apply evaluates the cascade and applies its updates in one transaction.
// Rows that became locked or terminal between evaluation and application are
// skipped and counted in the outcome. Cross-day spillover is reported, never
// applied; the caller issues a new pivot for the next day.
func (s *PivotService) Apply(ctx context.Context, slotID string, newDurationMinutes *int) (*CascadeResult, *persistence.CascadeOutcome, error) {
	res, err := s.Evaluate(ctx, slotID, newDurationMinutes)
	if err != nil {
		return nil, nil, err
	}
	if len(res.Updates) == 0 {
		return res, &persistence.CascadeOutcome{}, nil
	}
	outcome, err := s.slots.ApplyCascade(ctx, res.Updates)
	if err != nil {
		return nil, nil, fmt.Errorf("apply cascade: %w", err)
	}
	log.Info().
		Str("slot_id", slotID).
		Int("delta_minutes", res.DeltaMinutes).
		Int("applied", outcome.Applied).
		Int("skipped", outcome.Skipped).
		Bool("cross_day", res.CrossDayImpact).
		Msg("cascade applied")
	return res, &outcome, nil
}
