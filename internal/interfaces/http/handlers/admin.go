package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/batch"
	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
)

// RunJob handles POST /admin/jobs/{job}. The optional ?date=YYYY-MM-DD query
// re-runs a past window; the default is yesterday UTC. Runs are synchronous:
// the nightly jobs are idempotent per run date, so a retried request is safe.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	job := mux.Vars(r)["job"]
	switch job {
	case batch.JobWriteBack, batch.JobPersona, batch.JobExtract, "all":
	default:
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", "unknown job")
		return
	}
	if job == "all" {
		job = ""
	}
	runDate := r.URL.Query().Get("date")
	if runDate == "" {
		runDate = batch.DefaultRunDate(time.Now())
	}
	if _, err := time.Parse(batch.DateLayout, runDate); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", "date must be YYYY-MM-DD")
		return
	}

	adminUser, _ := r.Context().Value("admin_user").(string)
	log.Info().Str("job", job).Str("run_date", runDate).Str("admin_user", adminUser).Msg("admin job triggered")

	if err := h.Batch.Run(r.Context(), job, runDate); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.JobRunResponse{
		Job:     job,
		RunDate: runDate,
		Status:  "completed",
	})
}

// HealthHandler handles GET /health.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	check := h.Health.Health(r.Context())

	status := http.StatusOK
	state := "healthy"
	if !check.Healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	h.writeJSON(w, status, httpContracts.HealthResponse{
		Status:    state,
		Timestamp: time.Now().UTC(),
		Database:  check,
	})
}
