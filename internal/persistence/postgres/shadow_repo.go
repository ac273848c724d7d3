package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type shadowRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewShadowRepo returns the Postgres-backed shadow result sink.
func NewShadowRepo(db *sqlx.DB, timeout time.Duration) persistence.ShadowRepo {
	return &shadowRepo{db: db, timeout: timeout}
}

func (r *shadowRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const ddl = `
		CREATE TABLE IF NOT EXISTS shadow_results (
			id                  BIGSERIAL PRIMARY KEY,
			model_id            TEXT NOT NULL,
			model_version       TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			shadow_rankings     JSONB NOT NULL,
			production_rankings JSONB NOT NULL,
			overlap_at_5        DOUBLE PRECISION NOT NULL,
			ndcg_at_10          DOUBLE PRECISION NOT NULL,
			latency_ms          BIGINT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure shadow_results: %w", err)
	}
	return nil
}

func (r *shadowRepo) Insert(ctx context.Context, res *persistence.ShadowResult) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO shadow_results
			(model_id, model_version, user_id, shadow_rankings,
			 production_rankings, overlap_at_5, ndcg_at_10, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		res.ModelID, res.ModelVersion, res.UserID, res.ShadowRankings,
		res.ProductionRankings, res.OverlapAt5, res.NDCGAt10,
		res.LatencyMs, res.CreatedAt).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("insert shadow result: %w", err)
	}
	return nil
}
