// Package batch runs the three nightly pipelines: behavioral write-back,
// persona EMA update, and BPR training-pair extraction. All three share the
// same shape: a UTC run date keying idempotency, a closed 24h window, and an
// audit row committed in the same transaction as the mutation.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// Job run statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// DateLayout is the run-date wire format.
const DateLayout = "2006-01-02"

// DefaultRunDate is yesterday's UTC calendar date: the most recent fully
// closed window.
func DefaultRunDate(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(DateLayout)
}

// Window returns the half-open UTC day [midnight, midnight+24h) for runDate.
func Window(runDate string) (persistence.TimeWindow, error) {
	day, err := time.ParseInLocation(DateLayout, runDate, time.UTC)
	if err != nil {
		return persistence.TimeWindow{}, fmt.Errorf("run date %q: %w", runDate, err)
	}
	return persistence.TimeWindow{From: day, To: day.Add(24 * time.Hour)}, nil
}

// auditor owns one job's audit table. Each table carries a UNIQUE run_date,
// which is the database-level idempotency guard.
type auditor struct {
	db    *sqlx.DB
	table string
	// countColumn names the job-specific primary count (rows_updated,
	// users_updated, rows_extracted).
	countColumn string
}

func (a *auditor) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id            BIGSERIAL PRIMARY KEY,
			run_date      DATE NOT NULL UNIQUE,
			status        TEXT NOT NULL,
			%s            BIGINT NOT NULL DEFAULT 0,
			duration_ms   BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, a.table, a.countColumn)
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s: %w", a.table, err)
	}
	return nil
}

// hasSuccess reports whether a success audit row already exists for the
// date. Error rows do not block a re-run.
func (a *auditor) hasSuccess(ctx context.Context, runDate string) (bool, error) {
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE run_date = $1 AND status = 'success')`,
		a.table)
	var exists bool
	if err := a.db.GetContext(ctx, &exists, query, runDate); err != nil {
		return false, fmt.Errorf("probe %s: %w", a.table, err)
	}
	return exists, nil
}

// record writes the success audit row inside the job's transaction. An
// error row left by a prior failed run for the same date is overwritten,
// so a retry after a transient failure can still land its success.
func (a *auditor) record(ctx context.Context, tx *sqlx.Tx, runDate string, count int64, duration time.Duration) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_date, status, %s, duration_ms)
		VALUES ($1, 'success', $2, $3)
		ON CONFLICT (run_date) DO UPDATE
		SET status = 'success',
		    %s = EXCLUDED.%s,
		    duration_ms = EXCLUDED.duration_ms,
		    error_message = NULL`, a.table, a.countColumn, a.countColumn, a.countColumn)
	if _, err := tx.ExecContext(ctx, query, runDate, count, duration.Milliseconds()); err != nil {
		return fmt.Errorf("audit %s: %w", a.table, err)
	}
	return nil
}

// recordError appends a best-effort error row in its own transaction after
// the mutation rolled back. A conflict with an existing row for the date is
// swallowed: the original outcome stands.
func (a *auditor) recordError(runDate string, duration time.Duration, jobErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (run_date, status, duration_ms, error_message)
		VALUES ($1, 'error', $2, $3)
		ON CONFLICT (run_date) DO NOTHING`, a.table)
	if _, err := a.db.ExecContext(ctx, query, runDate, duration.Milliseconds(), jobErr.Error()); err != nil {
		log.Warn().Err(err).Str("table", a.table).Str("run_date", runDate).
			Msg("error audit row write failed")
	}
}

// inTx runs fn inside one transaction with rollback on any error or panic.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
