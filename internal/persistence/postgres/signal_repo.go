// Package postgres implements the persistence repositories on sqlx/lib-pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

const uniqueViolation = "23505"

type signalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalRepo returns the Postgres-backed signal store.
func NewSignalRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalRepo {
	return &signalRepo{db: db, timeout: timeout}
}

func (r *signalRepo) Insert(ctx context.Context, s *persistence.BehavioralSignal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO behavioral_signals
			(id, user_id, trip_id, activity_node_id, slot_id, signal_type,
			 signal_value, trip_phase, raw_action, source, subflow,
			 signal_weight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.TripID, s.ActivityNodeID, s.SlotID, s.SignalType,
		s.SignalValue, s.TripPhase, s.RawAction, s.Source, s.Subflow,
		s.SignalWeight, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert behavioral signal: %w", err)
	}
	return nil
}

func (r *signalRepo) HasOffPlanNode(ctx context.Context, userID, tripID, nodeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM behavioral_signals
			WHERE user_id = $1 AND trip_id = $2 AND activity_node_id = $3
			  AND subflow = $4
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, tripID, nodeID, "onthefly_add"); err != nil {
		return false, fmt.Errorf("off-plan dedup probe: %w", err)
	}
	return exists, nil
}

type intentionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIntentionRepo returns the Postgres-backed intention store. Suppression
// and the one-per-(signal,source) rule live in SQL so concurrent writers
// converge on the same rows.
func NewIntentionRepo(db *sqlx.DB, timeout time.Duration) persistence.IntentionRepo {
	return &intentionRepo{db: db, timeout: timeout}
}

func (r *intentionRepo) Record(ctx context.Context, i *persistence.IntentionSignal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}

	// A rule-heuristic row is only inserted while no explicit row exists for
	// the signal; duplicate (signal, source) pairs are absorbed by the unique
	// constraint.
	const query = `
		INSERT INTO intention_signals
			(id, behavioral_signal_id, intention_type, intention_value,
			 confidence, source, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE $6 <> 'rule_heuristic' OR NOT EXISTS (
			SELECT 1 FROM intention_signals
			WHERE behavioral_signal_id = $2 AND source = 'explicit_feedback'
		)
		ON CONFLICT (behavioral_signal_id, source) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query,
		i.ID, i.BehavioralSignalID, i.IntentionType, i.IntentionValue,
		i.Confidence, i.Source, i.CreatedAt); err != nil {
		return fmt.Errorf("record intention: %w", err)
	}
	return nil
}

type ingestionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIngestionRepo returns the Postgres-backed ingestion queue.
func NewIngestionRepo(db *sqlx.DB, timeout time.Duration) persistence.IngestionRepo {
	return &ingestionRepo{db: db, timeout: timeout}
}

func (r *ingestionRepo) Enqueue(ctx context.Context, req *persistence.IngestionRequest) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO ingestion_requests
			(id, user_id, trip_id, place_name, place_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.TripID, req.PlaceName, req.PlaceKey,
		req.Status, req.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("enqueue ingestion request: %w", err)
	}
	return nil
}

// mapNotFound converts sql.ErrNoRows into the package sentinel.
func mapNotFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
