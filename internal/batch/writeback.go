package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// WriteBackResult is the behavioral write-back job report.
type WriteBackResult struct {
	Date        string `json:"date"`
	Status      string `json:"status"`
	RowsUpdated int64  `json:"rows_updated"`
	DurationMs  int64  `json:"duration_ms"`
}

// WriteBackJob folds one day of behavioral signals into the activity nodes'
// cumulative impression/acceptance counters and recomputes the smoothed
// quality score, all in a single SQL statement.
type WriteBackJob struct {
	db    *sqlx.DB
	audit *auditor
}

// NewWriteBackJob builds the job over the shared connection pool.
func NewWriteBackJob(db *sqlx.DB) *WriteBackJob {
	return &WriteBackJob{
		db:    db,
		audit: &auditor{db: db, table: "writeback_runs", countColumn: "rows_updated"},
	}
}

// writeBackCTE aggregates the window per node and applies the deltas to the
// cumulative counters. The quality score is recomputed from the cumulative
// values inside the same statement, which keeps it strictly inside (0,1):
// score = (acceptance+1)/(impression+2), Laplace-smoothed.
const writeBackCTE = `
	WITH window_signals AS (
		SELECT activity_node_id,
		       COUNT(*) FILTER (WHERE signal_type IN
		           ('slot_view', 'slot_tap', 'slot_confirm', 'slot_complete',
		            'discover_swipe_right', 'discover_shortlist')) AS impressions,
		       COUNT(*) FILTER (WHERE signal_type IN
		           ('slot_confirm', 'slot_complete', 'discover_shortlist',
		            'post_loved')) AS acceptances
		FROM behavioral_signals
		WHERE source = 'user_behavioral'
		  AND activity_node_id IS NOT NULL
		  AND created_at >= $1 AND created_at < $2
		GROUP BY activity_node_id
	)
	UPDATE activity_nodes n
	SET impression_count = n.impression_count + w.impressions,
	    acceptance_count = n.acceptance_count + w.acceptances,
	    behavioral_quality_score =
	        (n.acceptance_count + w.acceptances + 1)::double precision /
	        (n.impression_count + w.impressions + 2)
	FROM window_signals w
	WHERE n.id = w.activity_node_id`

// Run executes the write-back for runDate (empty means yesterday UTC). A
// prior success for the date short-circuits to a skipped result with zero
// writes.
func (j *WriteBackJob) Run(ctx context.Context, runDate string) (*WriteBackResult, error) {
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
		log.Info().Str("job", "writeback").Str("run_date", runDate).Msg("already succeeded, skipping")
		return &WriteBackResult{Date: runDate, Status: StatusSkipped}, nil
	}

	start := time.Now()
	var rows int64
	err = inTx(ctx, j.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, writeBackCTE, window.From, window.To)
		if err != nil {
			return fmt.Errorf("write-back update: %w", err)
		}
		rows, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("write-back rows affected: %w", err)
		}
		return j.audit.record(ctx, tx, runDate, rows, time.Since(start))
	})
	if err != nil {
		j.audit.recordError(runDate, time.Since(start), err)
		return nil, err
	}

	result := &WriteBackResult{
		Date:        runDate,
		Status:      StatusSuccess,
		RowsUpdated: rows,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	log.Info().Str("job", "writeback").Str("run_date", runDate).
		Int64("rows_updated", rows).Int64("duration_ms", result.DurationMs).
		Msg("write-back complete")
	return result, nil
}
