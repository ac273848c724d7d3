package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type tripRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTripRepo returns the Postgres-backed trip repository.
func NewTripRepo(db *sqlx.DB, timeout time.Duration) persistence.TripRepo {
	return &tripRepo{db: db, timeout: timeout}
}

func (r *tripRepo) Get(ctx context.Context, tripID string) (*persistence.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var t persistence.Trip
	const query = `
		SELECT id, mode, city, timezone, start_date, end_date, status,
		       fairness_state, created_at
		FROM trips WHERE id = $1`
	if err := r.db.GetContext(ctx, &t, query, tripID); err != nil {
		return nil, mapNotFound(err, "get trip")
	}
	return &t, nil
}

func (r *tripRepo) MemberRole(ctx context.Context, tripID, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var role string
	const query = `SELECT role FROM trip_members WHERE trip_id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &role, query, tripID, userID); err != nil {
		return "", mapNotFound(err, "member role")
	}
	return role, nil
}

func (r *tripRepo) AddMember(ctx context.Context, m *persistence.TripMember) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO trip_members (trip_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trip_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, m.TripID, m.UserID, m.Role, m.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil
		}
		return fmt.Errorf("add trip member: %w", err)
	}
	return nil
}

func (r *tripRepo) CompletedTripCount(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	const query = `
		SELECT COUNT(*)
		FROM trips t
		JOIN trip_members m ON m.trip_id = t.id
		WHERE m.user_id = $1 AND t.status = 'completed'`
	if err := r.db.GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("completed trip count: %w", err)
	}
	return n, nil
}
