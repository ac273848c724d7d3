package itinerary

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type fakeSlotRepo struct {
	byDay    map[int][]persistence.ItinerarySlot
	inserted []persistence.ItinerarySlot
}

func (f *fakeSlotRepo) Get(_ context.Context, slotID string) (*persistence.ItinerarySlot, error) {
	for _, slots := range f.byDay {
		for i := range slots {
			if slots[i].ID == slotID {
				s := slots[i]
				return &s, nil
			}
		}
	}
	return nil, persistence.ErrNotFound
}

func (f *fakeSlotRepo) ListDay(_ context.Context, _ string, day int) ([]persistence.ItinerarySlot, error) {
	slots := append([]persistence.ItinerarySlot(nil), f.byDay[day]...)
	sort.Slice(slots, func(i, j int) bool { return slots[i].SortOrder < slots[j].SortOrder })
	return slots, nil
}

func (f *fakeSlotRepo) ListTrip(context.Context, string) ([]persistence.ItinerarySlot, error) {
	return nil, nil
}

func (f *fakeSlotRepo) ApplyCascade(context.Context, []persistence.SlotUpdate) (persistence.CascadeOutcome, error) {
	return persistence.CascadeOutcome{}, nil
}

func (f *fakeSlotRepo) InsertProposed(_ context.Context, slot *persistence.ItinerarySlot) error {
	day := f.byDay[slot.DayNumber]
	for i := range day {
		if day[i].SortOrder >= slot.SortOrder {
			day[i].SortOrder++
		}
	}
	f.byDay[slot.DayNumber] = append(day, *slot)
	f.inserted = append(f.inserted, *slot)
	return nil
}

func (f *fakeSlotRepo) HasScheduledNode(context.Context, string, int, string) (bool, error) {
	return false, nil
}

type fakeNodeRepo struct {
	nodes      map[string]persistence.ActivityNode
	candidates []persistence.ActivityNode
	lastQuery  *persistence.CorridorQuery
}

func (f *fakeNodeRepo) Get(_ context.Context, id string) (*persistence.ActivityNode, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &n, nil
}

func (f *fakeNodeRepo) CorridorCandidates(_ context.Context, q persistence.CorridorQuery) ([]persistence.ActivityNode, error) {
	f.lastQuery = &q
	return f.candidates, nil
}

type fakeTripRepo struct {
	trip persistence.Trip
}

func (f *fakeTripRepo) Get(context.Context, string) (*persistence.Trip, error) {
	t := f.trip
	return &t, nil
}

func (f *fakeTripRepo) MemberRole(context.Context, string, string) (string, error) {
	return persistence.RoleOrganizer, nil
}

func (f *fakeTripRepo) AddMember(context.Context, *persistence.TripMember) error { return nil }

func (f *fakeTripRepo) CompletedTripCount(context.Context, string) (int, error) { return 0, nil }

type vetoAdvisor struct {
	risky bool
}

func (a vetoAdvisor) OutdoorRisk(context.Context, string, string) bool { return a.risky }

func nodeIDPtr(id string) *string { return &id }

func transitDay() map[int][]persistence.ItinerarySlot {
	origin := mkSlot("origin", 1, 1, "2026-05-10T09:00:00Z", "2026-05-10T10:00:00Z")
	origin.ActivityNodeID = nodeIDPtr("node-origin")
	transit := mkSlot("walk", 1, 2, "2026-05-10T10:00:00Z", "2026-05-10T10:40:00Z")
	transit.SlotType = persistence.SlotTypeTransit
	dest := mkSlot("dest", 1, 3, "2026-05-10T10:40:00Z", "2026-05-10T12:00:00Z")
	dest.ActivityNodeID = nodeIDPtr("node-dest")
	return map[int][]persistence.ItinerarySlot{1: {origin, transit, dest}}
}

func corridorNodes() map[string]persistence.ActivityNode {
	return map[string]persistence.ActivityNode{
		"node-origin": {ID: "node-origin", Lat: 48.8566, Lon: 2.3522, Category: "museum"},
		"node-dest":   {ID: "node-dest", Lat: 48.8606, Lon: 2.3376, Category: "restaurant"},
	}
}

func newPlannerFixture(candidates []persistence.ActivityNode, advisor OutdoorRiskAdvisor) (*MicroStopPlanner, *fakeSlotRepo, *fakeNodeRepo) {
	slots := &fakeSlotRepo{byDay: transitDay()}
	nodes := &fakeNodeRepo{nodes: corridorNodes(), candidates: candidates}
	trips := &fakeTripRepo{trip: persistence.Trip{ID: "trip-1", City: "Paris", Timezone: "Europe/Paris"}}
	return NewMicroStopPlanner(slots, nodes, trips, advisor), slots, nodes
}

func TestPlanDayInsertsProposedStop(t *testing.T) {
	cafe := persistence.ActivityNode{ID: "node-cafe", Category: "cafe", ConvergenceScore: 0.8, Lat: 48.858, Lon: 2.345}
	planner, slots, nodes := newPlannerFixture([]persistence.ActivityNode{cafe}, nil)

	insertions, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	require.Len(t, insertions, 1)

	ins := insertions[0]
	assert.Equal(t, "walk", ins.TransitSlotID)
	assert.Equal(t, "node-cafe", ins.Node.ID)

	slot := ins.Slot
	assert.Equal(t, persistence.SlotTypeFlex, slot.SlotType)
	assert.Equal(t, persistence.SlotStatusProposed, slot.Status)
	assert.False(t, slot.IsLocked)
	assert.Equal(t, 3, slot.SortOrder, "lands right after the transit slot")
	assert.Equal(t, "2026-05-10T10:40:00Z", slot.StartTime.Format(time.RFC3339))
	assert.Equal(t, "2026-05-10T11:00:00Z", slot.EndTime.Format(time.RFC3339))
	require.NotNil(t, slot.DurationMinutes)
	assert.Equal(t, 20, *slot.DurationMinutes)

	// The destination slot shifted by one.
	day, _ := slots.ListDay(context.Background(), "trip-1", 1)
	require.Len(t, day, 4)
	assert.Equal(t, "dest", day[3].ID)
	assert.Equal(t, 4, day[3].SortOrder)

	q := nodes.lastQuery
	require.NotNil(t, q)
	assert.Equal(t, CorridorBufferMeters, q.BufferMeters)
	assert.Equal(t, MinCorridorConvergence, q.MinConvergence)
	assert.Equal(t, MaxCorridorCandidates, q.Limit)
	assert.ElementsMatch(t, []string{"node-origin", "node-dest"}, q.ExcludeNodeIDs)
	assert.Equal(t, "trip-1", q.TripID)
	assert.Equal(t, 1, q.DayNumber)
}

func TestPlanDayIdempotent(t *testing.T) {
	cafe := persistence.ActivityNode{ID: "node-cafe", Category: "cafe", ConvergenceScore: 0.8}
	planner, slots, _ := newPlannerFixture([]persistence.ActivityNode{cafe}, nil)

	first, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The inserted flex slot now follows the transit, so the segment is out.
	second, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, slots.inserted, 1)
}

func TestPlanDayNoCandidates(t *testing.T) {
	planner, slots, _ := newPlannerFixture(nil, nil)

	insertions, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	assert.Empty(t, insertions)
	assert.Empty(t, slots.inserted)
}

func TestPlanDayWeatherGuard(t *testing.T) {
	lookout := persistence.ActivityNode{ID: "node-lookout", Category: "outdoors", ConvergenceScore: 0.9}
	cafe := persistence.ActivityNode{ID: "node-cafe", Category: "cafe", ConvergenceScore: 0.7}

	// Rain vetoes the outdoor leader; the indoor runner-up wins.
	planner, _, _ := newPlannerFixture([]persistence.ActivityNode{lookout, cafe}, vetoAdvisor{risky: true})
	insertions, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	require.Len(t, insertions, 1)
	assert.Equal(t, "node-cafe", insertions[0].Node.ID)

	// Clear skies keep the leader.
	planner, _, _ = newPlannerFixture([]persistence.ActivityNode{lookout, cafe}, vetoAdvisor{risky: false})
	insertions, err = planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	require.Len(t, insertions, 1)
	assert.Equal(t, "node-lookout", insertions[0].Node.ID)
}

func TestPlanDaySkipsLockedTransit(t *testing.T) {
	day := transitDay()
	day[1][1].IsLocked = true
	slots := &fakeSlotRepo{byDay: day}
	nodes := &fakeNodeRepo{nodes: corridorNodes(), candidates: []persistence.ActivityNode{{ID: "x", Category: "cafe"}}}
	trips := &fakeTripRepo{trip: persistence.Trip{ID: "trip-1", City: "Paris"}}
	planner := NewMicroStopPlanner(slots, nodes, trips, nil)

	insertions, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	assert.Empty(t, insertions)
}

func TestPlanDaySkipsUnknownCoordinates(t *testing.T) {
	slots := &fakeSlotRepo{byDay: transitDay()}
	nodes := &fakeNodeRepo{
		nodes: map[string]persistence.ActivityNode{
			"node-origin": {ID: "node-origin", Lat: 0, Lon: 0},
			"node-dest":   {ID: "node-dest", Lat: 48.86, Lon: 2.33},
		},
		candidates: []persistence.ActivityNode{{ID: "x", Category: "cafe"}},
	}
	trips := &fakeTripRepo{trip: persistence.Trip{ID: "trip-1", City: "Paris"}}
	planner := NewMicroStopPlanner(slots, nodes, trips, nil)

	insertions, err := planner.PlanDay(context.Background(), "trip-1", 1)
	require.NoError(t, err)
	assert.Empty(t, insertions)
}

func TestStopDuration(t *testing.T) {
	testCases := []struct {
		category string
		expected int
	}{
		{"cafe", 20},
		{"bakery", 15},
		{"museum", 30}, // 45 clamps to the cap
		{"market", 30},
		{"tea_house", DefaultStopMinutes},
	}
	for _, tc := range testCases {
		t.Run(tc.category, func(t *testing.T) {
			assert.Equal(t, tc.expected, stopDuration(tc.category))
		})
	}
}
