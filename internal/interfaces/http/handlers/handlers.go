// Package handlers implements the HTTP endpoint handlers over the domain
// services.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
	"github.com/kevindtbd/overplanned-sub003/internal/batch"
	"github.com/kevindtbd/overplanned-sub003/internal/itinerary"
	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
	"github.com/kevindtbd/overplanned-sub003/internal/ranking"
	"github.com/kevindtbd/overplanned-sub003/internal/shadow"
	"github.com/kevindtbd/overplanned-sub003/internal/signal"
	"github.com/kevindtbd/overplanned-sub003/internal/token"
)

// HeaderUserID identifies the acting user on authenticated routes. The
// gateway terminates real authentication upstream of this service.
const HeaderUserID = "X-User-Id"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	Repos      *persistence.Repository
	Pipeline   *signal.Pipeline
	Resolver   signal.Resolver
	Pivot      *itinerary.PivotService
	MicroStops *itinerary.MicroStopPlanner
	Tokens     *token.Service
	Shadow     *shadow.Runner
	PostFilter ranking.PostFilter
	Batch      *batch.Runner
	Health     persistence.RepositoryHealth
}

// writeJSON writes the JSON response. The status line is already flushed
// when encoding fails, so the failure can only be logged, not signalled.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

// writeError writes the standardized error envelope.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := r.Context().Value("request_id")
	if requestID == nil {
		requestID = "unknown"
	}

	errorResp := httpContracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID.(string),
		Timestamp: time.Now().UTC(),
	}

	h.writeJSON(w, status, errorResp)
}

// writeDomainError maps domain error kinds onto the envelope. Not-found
// bodies are fixed so token probes learn nothing beyond "no".
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *signal.InputError
	switch {
	case errors.As(err, &inputErr):
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", inputErr.Error())
	case errors.Is(err, persistence.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, token.ErrForbidden):
		h.writeError(w, r, http.StatusForbidden, "forbidden", "caller may not perform this action")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decode parses a bounded JSON body into dst.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json", "request body is not valid JSON for this endpoint")
		return false
	}
	return true
}

// callerID returns the acting user id, or writes a 401 and returns false.
func (h *Handlers) callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		h.writeError(w, r, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return id, true
}

// NotFound handles 404 responses.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
