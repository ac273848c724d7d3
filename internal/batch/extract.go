package batch

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
)

// ExtractResult is the BPR training extract job report.
type ExtractResult struct {
	TargetDate    string `json:"target_date"`
	Status        string `json:"status"`
	RowsExtracted int64  `json:"rows_extracted"`
	FilePath      string `json:"file_path"`
	DurationMs    int64  `json:"duration_ms"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// TrainingPair is one BPR quadruple in the columnar output.
type TrainingPair struct {
	UserID    string `parquet:"user_id"`
	PosItem   string `parquet:"pos_item"`
	NegItem   string `parquet:"neg_item"`
	Timestamp int64  `parquet:"timestamp"`
}

// Extract pairing sets.
var (
	extractPositives = []string{"slot_confirm", "slot_complete", "post_loved", "discover_shortlist"}
	extractNegatives = []string{"slot_skip", "post_disliked", "discover_swipe_left"}
)

// MinCompletedTrips gates extract eligibility: BPR pairs from users with too
// little history are mostly noise.
const MinCompletedTrips = 3

// ExtractJob pairs each eligible user's window positives with random
// same-user negatives and writes the quadruples to a parquet file.
type ExtractJob struct {
	db        *sqlx.DB
	audit     *auditor
	outputDir string
	seed      *int64
}

// NewExtractJob builds the job. outputDir must exist and be writable.
func NewExtractJob(db *sqlx.DB, outputDir string) *ExtractJob {
	return &ExtractJob{
		db:        db,
		audit:     &auditor{db: db, table: "training_extract_runs", countColumn: "rows_extracted"},
		outputDir: outputDir,
	}
}

// WithSeed pins the negative-sampling RNG. Test hook; the default seed is
// derived from the run date so a re-run of the same date reproduces the same
// pairs.
func (j *ExtractJob) WithSeed(seed int64) *ExtractJob {
	j.seed = &seed
	return j
}

func (j *ExtractJob) rng(runDate string) *rand.Rand {
	if j.seed != nil {
		return rand.New(rand.NewSource(*j.seed))
	}
	h := fnv.New64a()
	h.Write([]byte(runDate))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// FilePath returns the output path for a run date.
func (j *ExtractJob) FilePath(runDate string) string {
	return filepath.Join(j.outputDir, fmt.Sprintf("bpr_training_%s.parquet", runDate))
}

type extractRow struct {
	UserID         string    `db:"user_id"`
	ActivityNodeID string    `db:"activity_node_id"`
	SignalType     string    `db:"signal_type"`
	CreatedAt      time.Time `db:"created_at"`
}

const extractSignalsQuery = `
	SELECT s.user_id, s.activity_node_id, s.signal_type, s.created_at
	FROM behavioral_signals s
	WHERE s.source = 'user_behavioral'
	  AND s.activity_node_id IS NOT NULL
	  AND s.signal_type = ANY($3)
	  AND s.created_at >= $1 AND s.created_at < $2
	  AND s.user_id IN (
		SELECT m.user_id
		FROM trip_members m
		JOIN trips t ON t.id = m.trip_id
		WHERE t.status = 'completed'
		GROUP BY m.user_id
		HAVING COUNT(*) >= $4
	  )
	ORDER BY s.user_id, s.created_at`

// Run executes the extract for runDate (empty means yesterday UTC). An
// existing output file for the date short-circuits to skipped, as does a
// prior success audit row.
func (j *ExtractJob) Run(ctx context.Context, runDate string) (*ExtractResult, error) {
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

	path := j.FilePath(runDate)
	done, err := j.audit.hasSuccess(ctx, runDate)
	if err != nil {
		return nil, err
	}
	if !done {
		if _, statErr := os.Stat(path); statErr == nil {
			done = true
		}
	}
	if done {
		log.Info().Str("job", "extract").Str("run_date", runDate).Msg("already extracted, skipping")
		return &ExtractResult{TargetDate: runDate, Status: StatusSkipped, FilePath: path}, nil
	}

	start := time.Now()
	types := append(append([]string{}, extractPositives...), extractNegatives...)

	var rows []extractRow
	if err := j.db.SelectContext(ctx, &rows, extractSignalsQuery,
		window.From, window.To, pq.Array(types), MinCompletedTrips); err != nil {
		err = fmt.Errorf("load extract signals: %w", err)
		j.audit.recordError(runDate, time.Since(start), err)
		return errResult(runDate, path, start, err)
	}

	pairs := j.buildPairs(rows, runDate)

	err = inTx(ctx, j.db, func(tx *sqlx.Tx) error {
		if err := parquet.WriteFile(path, pairs); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return j.audit.record(ctx, tx, runDate, int64(len(pairs)), time.Since(start))
	})
	if err != nil {
		// Do not leave a half-written file behind to trip the next run's
		// existence check.
		os.Remove(path)
		j.audit.recordError(runDate, time.Since(start), err)
		return errResult(runDate, path, start, err)
	}

	result := &ExtractResult{
		TargetDate:    runDate,
		Status:        StatusSuccess,
		RowsExtracted: int64(len(pairs)),
		FilePath:      path,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	log.Info().Str("job", "extract").Str("run_date", runDate).
		Int64("rows_extracted", result.RowsExtracted).Str("file_path", path).
		Msg("training extract complete")
	return result, nil
}

// errResult reports a failed run: the error propagates, and the result
// carries the message for callers that surface partial reports.
func errResult(runDate, path string, start time.Time, err error) (*ExtractResult, error) {
	return &ExtractResult{
		TargetDate:   runDate,
		Status:       StatusError,
		FilePath:     path,
		DurationMs:   time.Since(start).Milliseconds(),
		ErrorMessage: err.Error(),
	}, err
}

// buildPairs pairs each positive with one random same-user negative. Users
// missing either side contribute nothing. Rows arrive (user, createdAt)
// ordered, so with a fixed seed the output is reproducible.
func (j *ExtractJob) buildPairs(rows []extractRow, runDate string) []TrainingPair {
	pos := map[string][]extractRow{}
	neg := map[string][]extractRow{}
	var userOrder []string
	seen := map[string]bool{}

	isPositive := map[string]bool{}
	for _, t := range extractPositives {
		isPositive[t] = true
	}

	for _, r := range rows {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			userOrder = append(userOrder, r.UserID)
		}
		if isPositive[r.SignalType] {
			pos[r.UserID] = append(pos[r.UserID], r)
		} else {
			neg[r.UserID] = append(neg[r.UserID], r)
		}
	}

	rng := j.rng(runDate)
	var pairs []TrainingPair
	for _, userID := range userOrder {
		positives, negatives := pos[userID], neg[userID]
		if len(positives) == 0 || len(negatives) == 0 {
			continue
		}
		for _, p := range positives {
			n := negatives[rng.Intn(len(negatives))]
			pairs = append(pairs, TrainingPair{
				UserID:    userID,
				PosItem:   p.ActivityNodeID,
				NegItem:   n.ActivityNodeID,
				Timestamp: p.CreatedAt.Unix(),
			})
		}
	}
	return pairs
}
