package itinerary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// Micro-stop planning constants.
const (
	CorridorBufferMeters   = 200.0
	MinCorridorConvergence = 0.4
	MaxCorridorCandidates  = 5

	MinStopMinutes     = 15
	MaxStopMinutes     = 30
	DefaultStopMinutes = 20
)

// stopDurations holds per-category dwell defaults in minutes, clamped into
// [MinStopMinutes, MaxStopMinutes] at lookup.
var stopDurations = map[string]int{
	"cafe":      20,
	"bakery":    15,
	"viewpoint": 15,
	"landmark":  20,
	"park":      25,
	"market":    30,
	"gallery":   30,
	"museum":    45,
}

func stopDuration(category string) int {
	d, ok := stopDurations[category]
	if !ok {
		return DefaultStopMinutes
	}
	if d < MinStopMinutes {
		return MinStopMinutes
	}
	if d > MaxStopMinutes {
		return MaxStopMinutes
	}
	return d
}

// outdoorCategories are the node categories the weather guard may veto.
var outdoorCategories = map[string]bool{"outdoors": true, "active": true}

// OutdoorRiskAdvisor reports whether current weather argues against an
// outdoor category in a city. Implementations degrade open: no data means
// no veto.
type OutdoorRiskAdvisor interface {
	OutdoorRisk(ctx context.Context, city, category string) bool
}

// Insertion records one planned micro-stop.
type Insertion struct {
	Slot          persistence.ItinerarySlot `json:"slot"`
	Node          persistence.ActivityNode  `json:"node"`
	TransitSlotID string                    `json:"transit_slot_id"`
}

// MicroStopPlanner proposes short flex stops along a day's transit segments.
type MicroStopPlanner struct {
	slots   persistence.SlotRepo
	nodes   persistence.NodeRepo
	trips   persistence.TripRepo
	advisor OutdoorRiskAdvisor
}

// NewMicroStopPlanner wires a planner. advisor may be nil to disable the
// weather guard.
func NewMicroStopPlanner(slots persistence.SlotRepo, nodes persistence.NodeRepo, trips persistence.TripRepo, advisor OutdoorRiskAdvisor) *MicroStopPlanner {
	return &MicroStopPlanner{slots: slots, nodes: nodes, trips: trips, advisor: advisor}
}

type transitSegment struct {
	origin, transit, destination persistence.ItinerarySlot
}

// eligibleSegments returns the day's adjacent (origin, transit, destination)
// triples whose transit is unlocked and not yet followed by a flex slot.
func eligibleSegments(slots []persistence.ItinerarySlot, processed map[string]bool) []transitSegment {
	var out []transitSegment
	for i := 1; i < len(slots)-1; i++ {
		mid := slots[i]
		if mid.SlotType != persistence.SlotTypeTransit || mid.IsLocked || processed[mid.ID] {
			continue
		}
		next := slots[i+1]
		if next.SlotType == persistence.SlotTypeFlex {
			// A flex stop already rides this segment.
			continue
		}
		prev := slots[i-1]
		if prev.ActivityNodeID == nil || next.ActivityNodeID == nil {
			continue
		}
		out = append(out, transitSegment{origin: prev, transit: mid, destination: next})
	}
	return out
}

// PlanDay inserts at most one proposed micro-stop per eligible transit
// segment of the given day. Each insertion lands at transit.sortOrder+1,
// shifting later slots, so the day is re-read after every write.
func (p *MicroStopPlanner) PlanDay(ctx context.Context, tripID string, dayNumber int) ([]Insertion, error) {
	trip, err := p.trips.Get(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load trip: %w", err)
	}

	var insertions []Insertion
	processed := map[string]bool{}
	for {
		daySlots, err := p.slots.ListDay(ctx, tripID, dayNumber)
		if err != nil {
			return insertions, fmt.Errorf("list day %d: %w", dayNumber, err)
		}
		segments := eligibleSegments(daySlots, processed)
		if len(segments) == 0 {
			return insertions, nil
		}
		seg := segments[0]
		processed[seg.transit.ID] = true

		ins, err := p.planSegment(ctx, trip, seg)
		if err != nil {
			return insertions, err
		}
		if ins != nil {
			insertions = append(insertions, *ins)
		}
	}
}

func (p *MicroStopPlanner) planSegment(ctx context.Context, trip *persistence.Trip, seg transitSegment) (*Insertion, error) {
	origin, err := p.nodes.Get(ctx, *seg.origin.ActivityNodeID)
	if err != nil {
		log.Debug().Err(err).Str("slot_id", seg.origin.ID).Msg("micro-stop origin node unavailable")
		return nil, nil
	}
	dest, err := p.nodes.Get(ctx, *seg.destination.ActivityNodeID)
	if err != nil {
		log.Debug().Err(err).Str("slot_id", seg.destination.ID).Msg("micro-stop destination node unavailable")
		return nil, nil
	}
	if (origin.Lat == 0 && origin.Lon == 0) || (dest.Lat == 0 && dest.Lon == 0) {
		return nil, nil
	}

	candidates, err := p.nodes.CorridorCandidates(ctx, persistence.CorridorQuery{
		TripID:         trip.ID,
		DayNumber:      seg.transit.DayNumber,
		OriginLat:      origin.Lat,
		OriginLon:      origin.Lon,
		DestinationLat: dest.Lat,
		DestinationLon: dest.Lon,
		BufferMeters:   CorridorBufferMeters,
		MinConvergence: MinCorridorConvergence,
		ExcludeNodeIDs: []string{origin.ID, dest.ID},
		Limit:          MaxCorridorCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("corridor candidates: %w", err)
	}

	pick := p.pickCandidate(ctx, trip.City, candidates)
	if pick == nil {
		return nil, nil
	}

	duration := stopDuration(pick.Category)
	start := seg.transit.EndTime.UTC()
	nodeID := pick.ID
	slot := persistence.ItinerarySlot{
		ID:              uuid.New().String(),
		TripID:          trip.ID,
		ActivityNodeID:  &nodeID,
		DayNumber:       seg.transit.DayNumber,
		SortOrder:       seg.transit.SortOrder + 1,
		SlotType:        persistence.SlotTypeFlex,
		Status:          persistence.SlotStatusProposed,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(duration) * time.Minute),
		DurationMinutes: &duration,
		IsLocked:        false,
		CreatedAt:       time.Now().UTC(),
	}
	if err := p.slots.InsertProposed(ctx, &slot); err != nil {
		return nil, fmt.Errorf("insert micro-stop: %w", err)
	}
	log.Info().
		Str("trip_id", trip.ID).
		Str("node_id", pick.ID).
		Str("transit_slot_id", seg.transit.ID).
		Int("duration_minutes", duration).
		Msg("micro-stop proposed")
	return &Insertion{Slot: slot, Node: *pick, TransitSlotID: seg.transit.ID}, nil
}

// pickCandidate takes the highest-convergence candidate that survives the
// weather guard. Candidates arrive convergence-descending from the repo.
func (p *MicroStopPlanner) pickCandidate(ctx context.Context, city string, candidates []persistence.ActivityNode) *persistence.ActivityNode {
	for i := range candidates {
		c := candidates[i]
		if p.advisor != nil && outdoorCategories[c.Category] && p.advisor.OutdoorRisk(ctx, city, c.Category) {
			continue
		}
		return &c
	}
	return nil
}
