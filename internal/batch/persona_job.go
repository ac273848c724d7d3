package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persona"
)

// PersonaResult is the persona EMA job report.
type PersonaResult struct {
	Date              string `json:"date"`
	Status            string `json:"status"`
	UsersUpdated      int64  `json:"users_updated"`
	DimensionsUpdated int64  `json:"dimensions_updated"`
	DurationMs        int64  `json:"duration_ms"`
}

// PersonaUpdateJob applies one day of behavioral evidence to persona
// dimension confidences via a weighted EMA. The fold itself is pure (see
// package persona); this job does the joins and the upserts.
type PersonaUpdateJob struct {
	db    *sqlx.DB
	audit *auditor
}

// NewPersonaUpdateJob builds the job over the shared connection pool.
func NewPersonaUpdateJob(db *sqlx.DB) *PersonaUpdateJob {
	return &PersonaUpdateJob{
		db:    db,
		audit: &auditor{db: db, table: "persona_update_runs", countColumn: "users_updated"},
	}
}

type categoryRow struct {
	UserID     string `db:"user_id"`
	Category   string `db:"category"`
	SignalType string `db:"signal_type"`
	TripPhase  string `db:"trip_phase"`
}

type dimensionRow struct {
	Dimension  string  `db:"dimension"`
	Value      string  `db:"value"`
	Confidence float64 `db:"confidence"`
}

// categorySignalsQuery joins window signals to their activity category. A
// direct node reference wins; otherwise the slot's node supplies it. Signals
// resolving to no node drop out of the join.
const categorySignalsQuery = `
	SELECT s.user_id, n.category, s.signal_type, s.trip_phase
	FROM behavioral_signals s
	LEFT JOIN itinerary_slots sl ON sl.id = s.slot_id
	JOIN activity_nodes n ON n.id = COALESCE(s.activity_node_id, sl.activity_node_id)
	WHERE s.source = 'user_behavioral'
	  AND s.created_at >= $1 AND s.created_at < $2
	ORDER BY s.user_id, s.created_at`

const upsertDimension = `
	INSERT INTO persona_dimensions
		(user_id, dimension, value, confidence, source, updated_at)
	VALUES ($1, $2, $3, $4, 'behavioral_ema', $5)
	ON CONFLICT (user_id, dimension) DO UPDATE
	SET confidence = EXCLUDED.confidence,
	    source     = EXCLUDED.source,
	    updated_at = EXCLUDED.updated_at`

// Run executes the persona update for runDate (empty means yesterday UTC).
func (j *PersonaUpdateJob) Run(ctx context.Context, runDate string) (*PersonaResult, error) {
	if runDate == "" {
		runDate = DefaultRunDate(time.Now())
	}
	window, err := Window(runDate)
	if err != nil {
		return nil, err
	}
	if err := j.audit.ensureSchema(ctx); err != nil {
		return nil, err
	}

	done, err := j.audit.hasSuccess(ctx, runDate)
	if err != nil {
		return nil, err
	}
	if done {
		log.Info().Str("job", "persona").Str("run_date", runDate).Msg("already succeeded, skipping")
		return &PersonaResult{Date: runDate, Status: StatusSkipped}, nil
	}

	start := time.Now()

	var rows []categoryRow
	if err := j.db.SelectContext(ctx, &rows, categorySignalsQuery, window.From, window.To); err != nil {
		err = fmt.Errorf("load window category signals: %w", err)
		j.audit.recordError(runDate, time.Since(start), err)
		return nil, err
	}

	// Rows arrive ordered by (user, createdAt); partition preserving order so
	// the per-user fold stays deterministic.
	byUser := map[string][]persona.Observation{}
	var userOrder []string
	for _, r := range rows {
		if _, seen := byUser[r.UserID]; !seen {
			userOrder = append(userOrder, r.UserID)
		}
		byUser[r.UserID] = append(byUser[r.UserID], persona.Observation{
			Category:   r.Category,
			SignalType: r.SignalType,
			TripPhase:  r.TripPhase,
		})
	}

	var usersUpdated, dimsUpdated int64
	now := time.Now().UTC()
	err = inTx(ctx, j.db, func(tx *sqlx.Tx) error {
		for _, userID := range userOrder {
			var existing []dimensionRow
			const current = `
				SELECT dimension, value, confidence
				FROM persona_dimensions WHERE user_id = $1`
			if err := tx.SelectContext(ctx, &existing, current, userID); err != nil {
				return fmt.Errorf("load dimensions for %s: %w", userID, err)
			}
			currentMap := make(map[string]persona.Existing, len(existing))
			for _, d := range existing {
				currentMap[d.Dimension] = persona.Existing{Value: d.Value, Confidence: d.Confidence}
			}

			updates, unknown := persona.Accumulate(byUser[userID], currentMap)
			for _, cat := range unknown {
				// Contract violation inside the batch: log and keep going.
				log.Warn().Str("job", "persona").Str("user_id", userID).
					Str("category", cat).Msg("unknown activity category, skipped")
			}
			if len(updates) == 0 {
				continue
			}
			for _, u := range updates {
				if _, err := tx.ExecContext(ctx, upsertDimension,
					userID, u.Dimension, u.Value, u.Confidence, now); err != nil {
					return fmt.Errorf("upsert %s/%s: %w", userID, u.Dimension, err)
				}
				dimsUpdated++
			}
			usersUpdated++
		}
		return j.audit.record(ctx, tx, runDate, usersUpdated, time.Since(start))
	})
	if err != nil {
		j.audit.recordError(runDate, time.Since(start), err)
		return nil, err
	}

	result := &PersonaResult{
		Date:              runDate,
		Status:            StatusSuccess,
		UsersUpdated:      usersUpdated,
		DimensionsUpdated: dimsUpdated,
		DurationMs:        time.Since(start).Milliseconds(),
	}
	log.Info().Str("job", "persona").Str("run_date", runDate).
		Int64("users_updated", usersUpdated).Int64("dimensions_updated", dimsUpdated).
		Msg("persona update complete")
	return result, nil
}
