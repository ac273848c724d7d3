package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type personaRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPersonaRepo returns the Postgres-backed persona snapshot reader. The
// nightly EMA job writes persona rows inside its own transaction; this repo
// only serves the read path.
func NewPersonaRepo(db *sqlx.DB, timeout time.Duration) persistence.PersonaRepo {
	return &personaRepo{db: db, timeout: timeout}
}

func (r *personaRepo) Snapshot(ctx context.Context, userID string) ([]persistence.PersonaDimension, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.PersonaDimension
	const query = `
		SELECT user_id, dimension, value, confidence, source, updated_at
		FROM persona_dimensions
		WHERE user_id = $1
		ORDER BY confidence DESC, dimension ASC`
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("persona snapshot: %w", err)
	}
	return out, nil
}
