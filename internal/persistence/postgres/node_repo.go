package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type nodeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewNodeRepo returns the Postgres-backed activity node repository. The
// corridor query requires PostGIS and a GIST index on the node coordinates.
func NewNodeRepo(db *sqlx.DB, timeout time.Duration) persistence.NodeRepo {
	return &nodeRepo{db: db, timeout: timeout}
}

const nodeColumns = `
	id, name, category, lat, lon, convergence_score, tourist_score,
	cant_miss, is_canonical, impression_count, acceptance_count,
	behavioral_quality_score, status, created_at`

func (r *nodeRepo) Get(ctx context.Context, nodeID string) (*persistence.ActivityNode, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n persistence.ActivityNode
	query := `SELECT` + nodeColumns + ` FROM activity_nodes WHERE id = $1`
	if err := r.db.GetContext(ctx, &n, query, nodeID); err != nil {
		return nil, mapNotFound(err, "get node")
	}
	return &n, nil
}

// CorridorCandidates finds approved canonical nodes inside a buffered
// corridor between the origin and destination. The 4326 line is re-projected
// to 3857 so the buffer is meter-accurate at city scale.
func (r *nodeRepo) CorridorCandidates(ctx context.Context, q persistence.CorridorQuery) ([]persistence.ActivityNode, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	excluded := q.ExcludeNodeIDs
	if excluded == nil {
		excluded = []string{}
	}

	query := `
		WITH corridor AS (
			SELECT ST_Buffer(
				ST_Transform(
					ST_SetSRID(ST_MakeLine(
						ST_MakePoint($1, $2),
						ST_MakePoint($3, $4)
					), 4326),
					3857),
				$5) AS geom
		)
		SELECT` + nodeColumns + `
		FROM activity_nodes n, corridor c
		WHERE n.status = 'approved'
		  AND n.is_canonical = TRUE
		  AND n.convergence_score >= $6
		  AND n.id <> ALL($7)
		  AND NOT EXISTS (
			SELECT 1 FROM itinerary_slots s
			WHERE s.trip_id = $8 AND s.day_number = $9
			  AND s.activity_node_id = n.id
		  )
		  AND ST_Within(
			ST_Transform(ST_SetSRID(ST_MakePoint(n.lon, n.lat), 4326), 3857),
			c.geom)
		ORDER BY n.convergence_score DESC
		LIMIT $10`

	var out []persistence.ActivityNode
	err := r.db.SelectContext(ctx, &out, query,
		q.OriginLon, q.OriginLat, q.DestinationLon, q.DestinationLat,
		q.BufferMeters, q.MinConvergence, pq.Array(excluded),
		q.TripID, q.DayNumber, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("corridor candidates: %w", err)
	}
	return out, nil
}
