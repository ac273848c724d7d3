package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type slotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSlotRepo returns the Postgres-backed slot repository.
func NewSlotRepo(db *sqlx.DB, timeout time.Duration) persistence.SlotRepo {
	return &slotRepo{db: db, timeout: timeout}
}

const slotColumns = `
	id, trip_id, activity_node_id, day_number, sort_order, slot_type,
	status, start_time, end_time, duration_minutes, is_locked, created_at`

func (r *slotRepo) Get(ctx context.Context, slotID string) (*persistence.ItinerarySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s persistence.ItinerarySlot
	query := `SELECT` + slotColumns + ` FROM itinerary_slots WHERE id = $1`
	if err := r.db.GetContext(ctx, &s, query, slotID); err != nil {
		return nil, mapNotFound(err, "get slot")
	}
	return &s, nil
}

func (r *slotRepo) ListDay(ctx context.Context, tripID string, dayNumber int) ([]persistence.ItinerarySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.ItinerarySlot
	query := `SELECT` + slotColumns + `
		FROM itinerary_slots
		WHERE trip_id = $1 AND day_number = $2
		ORDER BY sort_order ASC`
	if err := r.db.SelectContext(ctx, &out, query, tripID, dayNumber); err != nil {
		return nil, fmt.Errorf("list day slots: %w", err)
	}
	return out, nil
}

func (r *slotRepo) ListTrip(ctx context.Context, tripID string) ([]persistence.ItinerarySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.ItinerarySlot
	query := `SELECT` + slotColumns + `
		FROM itinerary_slots
		WHERE trip_id = $1
		ORDER BY day_number ASC, sort_order ASC`
	if err := r.db.SelectContext(ctx, &out, query, tripID); err != nil {
		return nil, fmt.Errorf("list trip slots: %w", err)
	}
	return out, nil
}

// ApplyCascade shifts each affected slot in one transaction. The WHERE clause
// re-checks lock and terminal status so rows that moved underneath the
// evaluation are skipped rather than clobbered.
func (r *slotRepo) ApplyCascade(ctx context.Context, updates []persistence.SlotUpdate) (persistence.CascadeOutcome, error) {
	var outcome persistence.CascadeOutcome
	if len(updates) == 0 {
		return outcome, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("begin cascade tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		UPDATE itinerary_slots
		SET start_time = $2, end_time = $3
		WHERE id = $1
		  AND is_locked = FALSE
		  AND status NOT IN ('completed', 'skipped')`

	for _, u := range updates {
		res, err := tx.ExecContext(ctx, query, u.SlotID, u.NewStart, u.NewEnd)
		if err != nil {
			return persistence.CascadeOutcome{}, fmt.Errorf("cascade update %s: %w", u.SlotID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return persistence.CascadeOutcome{}, fmt.Errorf("cascade rows affected: %w", err)
		}
		if n == 0 {
			outcome.Skipped++
		} else {
			outcome.Applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return persistence.CascadeOutcome{}, fmt.Errorf("commit cascade: %w", err)
	}
	return outcome, nil
}

// InsertProposed opens a gap at the slot's sortOrder and inserts, keeping the
// day's ordering dense, all in one transaction.
func (r *slotRepo) InsertProposed(ctx context.Context, slot *persistence.ItinerarySlot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	const shift = `
		UPDATE itinerary_slots
		SET sort_order = sort_order + 1
		WHERE trip_id = $1 AND day_number = $2 AND sort_order >= $3`
	if _, err := tx.ExecContext(ctx, shift, slot.TripID, slot.DayNumber, slot.SortOrder); err != nil {
		return fmt.Errorf("shift slots: %w", err)
	}

	const insert = `
		INSERT INTO itinerary_slots
			(id, trip_id, activity_node_id, day_number, sort_order, slot_type,
			 status, start_time, end_time, duration_minutes, is_locked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := tx.ExecContext(ctx, insert,
		slot.ID, slot.TripID, slot.ActivityNodeID, slot.DayNumber,
		slot.SortOrder, slot.SlotType, slot.Status, slot.StartTime,
		slot.EndTime, slot.DurationMinutes, slot.IsLocked, slot.CreatedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func (r *slotRepo) HasScheduledNode(ctx context.Context, tripID string, dayNumber int, nodeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM itinerary_slots
			WHERE trip_id = $1 AND day_number = $2 AND activity_node_id = $3
		)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tripID, dayNumber, nodeID); err != nil {
		return false, fmt.Errorf("scheduled node probe: %w", err)
	}
	return exists, nil
}
