package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Job names accepted by Runner.Run.
const (
	JobWriteBack = "writeback"
	JobPersona   = "persona"
	JobExtract   = "extract"
)

// Meter receives nightly job completions. A nil meter disables metering.
type Meter interface {
	RecordBatchRun(job, status string, durationSeconds float64)
}

// Runner sequences the nightly jobs. Order matters: the write-back refreshes
// node quality before the persona and extract passes read the same window.
type Runner struct {
	WriteBack *WriteBackJob
	Persona   *PersonaUpdateJob
	Extract   *ExtractJob
	meter     Meter
}

// NewRunner wires the three jobs over one connection pool. Batch processes
// size the pool small (max 3); each job holds a single connection at a time.
func NewRunner(db *sqlx.DB, extractDir string, meter Meter) *Runner {
	return &Runner{
		WriteBack: NewWriteBackJob(db),
		Persona:   NewPersonaUpdateJob(db),
		Extract:   NewExtractJob(db, extractDir),
		meter:     meter,
	}
}

// meterRun is nil-safe.
func (r *Runner) meterRun(job, status string, took time.Duration) {
	if r.meter != nil {
		r.meter.RecordBatchRun(job, status, took.Seconds())
	}
}

// Run executes one named job, or all three in order when job is empty. The
// first failure stops the sequence; completed jobs keep their audit rows.
func (r *Runner) Run(ctx context.Context, job, runDate string) error {
	if runDate == "" {
		runDate = DefaultRunDate(time.Now())
	}

	run := func(name string) error {
		start := time.Now()
		var (
			status string
			err    error
		)
		switch name {
		case JobWriteBack:
			var res *WriteBackResult
			if res, err = r.WriteBack.Run(ctx, runDate); err == nil {
				status = res.Status
			}
		case JobPersona:
			var res *PersonaResult
			if res, err = r.Persona.Run(ctx, runDate); err == nil {
				status = res.Status
			}
		case JobExtract:
			var res *ExtractResult
			if res, err = r.Extract.Run(ctx, runDate); err == nil {
				status = res.Status
			}
		default:
			return fmt.Errorf("unknown job %q", name)
		}
		if err != nil {
			r.meterRun(name, StatusError, time.Since(start))
			return fmt.Errorf("job %s: %w", name, err)
		}
		r.meterRun(name, status, time.Since(start))
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("nightly job finished")
		return nil
	}

	if job != "" {
		return run(job)
	}
	for _, name := range []string{JobWriteBack, JobPersona, JobExtract} {
		if err := run(name); err != nil {
			return err
		}
	}
	return nil
}
