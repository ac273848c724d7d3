package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// PlaceResolver is the off-plan entity resolver: a free-text place name
// matches when an approved canonical node carries the same name,
// case-insensitively. Ambiguity resolves to the highest-convergence node.
type PlaceResolver struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPlaceResolver returns a resolver over the shared pool.
func NewPlaceResolver(db *sqlx.DB, timeout time.Duration) *PlaceResolver {
	return &PlaceResolver{db: db, timeout: timeout}
}

func (r *PlaceResolver) Resolve(ctx context.Context, _ string, placeName string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT id FROM activity_nodes
		WHERE status = 'approved' AND is_canonical = TRUE
		  AND lower(name) = lower($1)
		ORDER BY convergence_score DESC
		LIMIT 1`

	var id string
	err := r.db.GetContext(ctx, &id, query, strings.TrimSpace(placeName))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
