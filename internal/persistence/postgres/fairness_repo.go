package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type fairnessRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFairnessRepo returns the Postgres-backed fairness state store.
func NewFairnessRepo(db *sqlx.DB, timeout time.Duration) persistence.FairnessRepo {
	return &fairnessRepo{db: db, timeout: timeout}
}

// Mutate serializes concurrent votes on the same trip through a row lock:
// the trip row is locked FOR UPDATE for the duration of the transaction, so
// read-modify-replace cycles from multiple replicas apply in some total
// order and none is lost.
func (r *fairnessRepo) Mutate(ctx context.Context, tripID string, fn func(raw []byte) ([]byte, error)) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fairness tx: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	const load = `SELECT fairness_state FROM trips WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &raw, load, tripID); err != nil {
		return mapNotFound(err, "lock fairness state")
	}

	next, err := fn(raw)
	if err != nil {
		return err
	}

	const store = `UPDATE trips SET fairness_state = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, store, tripID, next); err != nil {
		return fmt.Errorf("store fairness state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fairness state: %w", err)
	}
	return nil
}

func (r *fairnessRepo) Get(ctx context.Context, tripID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw []byte
	const query = `SELECT fairness_state FROM trips WHERE id = $1`
	if err := r.db.GetContext(ctx, &raw, query, tripID); err != nil {
		return nil, mapNotFound(err, "get fairness state")
	}
	return raw, nil
}
