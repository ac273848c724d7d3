package shadow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// Model is a candidate ranking model under shadow evaluation.
type Model interface {
	ID() string
	Version() string

	// Predict returns the model's ranking of the candidate set, best first.
	Predict(ctx context.Context, userID string, candidates []string) ([]string, error)
}

// Meter receives shadow run outcomes. Implementations must be safe for
// concurrent use. A nil meter disables metering.
type Meter interface {
	RecordShadowRun(outcome string, overlap float64)
}

// Run outcomes reported to the meter.
const (
	OutcomeCompleted    = "completed"
	OutcomePredictError = "predict_error"
	OutcomePersistError = "persist_error"
	OutcomePanicked     = "panicked"
)

// Runner supervises fire-and-forget shadow evaluations. The production path
// calls MaybeRun and moves on; tasks are recovered, logged, and never awaited
// by the caller.
type Runner struct {
	model   Model
	repo    persistence.ShadowRepo
	timeout time.Duration
	meter   Meter
	wg      sync.WaitGroup
}

// NewRunner builds a supervisor. A model handed in directly runs even with
// the flag off; only the no-model runner is the zero-overhead fast path, and
// the flag without a model activates nothing.
func NewRunner(enabled bool, model Model, repo persistence.ShadowRepo, timeout time.Duration, meter Meter) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if enabled && model == nil {
		log.Warn().Msg("shadow evaluation enabled without a model, runner inactive")
	}
	return &Runner{model: model, repo: repo, timeout: timeout, meter: meter}
}

// Active reports whether shadow evaluations will actually run.
func (r *Runner) Active() bool {
	return r != nil && r.model != nil
}

// MaybeRun snapshots the inputs and spawns one supervised evaluation task.
// It returns before the task does any work and never blocks the caller. The
// request context is deliberately not propagated: the task outlives the
// response and runs under its own timeout.
func (r *Runner) MaybeRun(_ context.Context, userID string, production, candidates []string) {
	if !r.Active() {
		return
	}
	prod := append([]string(nil), production...)
	cands := append([]string(nil), candidates...)

	r.wg.Add(1)
	go r.evaluate(userID, prod, cands)
}

// Wait drains in-flight tasks. Used by tests and graceful shutdown.
func (r *Runner) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// meterRun is nil-safe.
func (r *Runner) meterRun(outcome string, overlap float64) {
	if r.meter != nil {
		r.meter.RecordShadowRun(outcome, overlap)
	}
}

func (r *Runner) evaluate(userID string, production, candidates []string) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("model_id", r.model.ID()).Msg("shadow task panicked")
			r.meterRun(OutcomePanicked, 0)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	shadowRanking, err := r.model.Predict(ctx, userID, candidates)
	latency := time.Since(start)
	if err != nil {
		log.Warn().Err(err).
			Str("model_id", r.model.ID()).
			Str("model_version", r.model.Version()).
			Msg("shadow predict failed")
		r.meterRun(OutcomePredictError, 0)
		return
	}

	overlap := OverlapAtK(shadowRanking, production, OverlapK)
	ndcg := NDCGAtK(shadowRanking, production, NDCGK)

	shadowJSON, err := json.Marshal(shadowRanking)
	if err != nil {
		log.Warn().Err(err).Msg("shadow ranking marshal failed")
		return
	}
	prodJSON, err := json.Marshal(production)
	if err != nil {
		log.Warn().Err(err).Msg("production ranking marshal failed")
		return
	}

	row := &persistence.ShadowResult{
		ModelID:            r.model.ID(),
		ModelVersion:       r.model.Version(),
		UserID:             userID,
		ShadowRankings:     string(shadowJSON),
		ProductionRankings: string(prodJSON),
		OverlapAt5:         overlap,
		NDCGAt10:           ndcg,
		LatencyMs:          latency.Milliseconds(),
		CreatedAt:          time.Now().UTC(),
	}
	if err := r.repo.Insert(ctx, row); err != nil {
		log.Warn().Err(err).Str("model_id", r.model.ID()).Msg("shadow result insert failed")
		r.meterRun(OutcomePersistError, 0)
		return
	}
	r.meterRun(OutcomeCompleted, overlap)
	log.Debug().
		Str("model_id", r.model.ID()).
		Float64("overlap_at_5", overlap).
		Float64("ndcg_at_10", ndcg).
		Int64("latency_ms", row.LatencyMs).
		Msg("shadow result recorded")
}
