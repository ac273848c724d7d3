// Package http assembles the HTTP surface: routing, middleware, and the
// admin HMAC boundary.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/adminauth"
	httpContracts "github.com/kevindtbd/overplanned-sub003/internal/http"
	"github.com/kevindtbd/overplanned-sub003/internal/interfaces/http/handlers"
	"github.com/kevindtbd/overplanned-sub003/internal/metrics"
)

// maxAdminBodyBytes bounds admin request bodies read for signature checks.
const maxAdminBodyBytes = 1 << 20

// RateLimiter refuses requests beyond a per-bucket budget. Implementations
// fail open on backend errors.
type RateLimiter interface {
	Allow(ctx context.Context, bucket string, limit int64, window time.Duration) bool
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	AdminRateLimit  int64
	AdminRateWindow time.Duration
}

// Server represents the HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	verifier *adminauth.Verifier
	limiter  RateLimiter
	metrics  *metrics.Registry
	config   ServerConfig
}

// NewServer creates a new HTTP server instance. verifier gates the admin
// subtree; limiter and reg may be nil.
func NewServer(config ServerConfig, h *handlers.Handlers, verifier *adminauth.Verifier, limiter RateLimiter, reg *metrics.Registry) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	if config.AdminRateLimit <= 0 {
		config.AdminRateLimit = 60
	}
	if config.AdminRateWindow <= 0 {
		config.AdminRateWindow = time.Minute
	}

	server := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		verifier: verifier,
		limiter:  limiter,
		metrics:  reg,
		config:   config,
	}
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return server, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.HealthHandler).Methods("GET")

	// Signal pipeline
	api.HandleFunc("/signals", s.handlers.RecordSignal).Methods("POST")
	api.HandleFunc("/signals/offplan", s.handlers.OffPlanAdd).Methods("POST")
	api.HandleFunc("/intentions", s.handlers.RecordIntention).Methods("POST")

	// Group decisions
	api.HandleFunc("/trips/{tripID}/votes", s.handlers.ApplyVote).Methods("POST")
	api.HandleFunc("/trips/{tripID}/fairness", s.handlers.GetFairness).Methods("GET")

	// Itinerary mutations
	api.HandleFunc("/slots/{slotID}/pivot/evaluate", s.handlers.EvaluatePivot).Methods("POST")
	api.HandleFunc("/slots/{slotID}/pivot/apply", s.handlers.ApplyPivot).Methods("POST")
	api.HandleFunc("/trips/{tripID}/days/{day}/microstops", s.handlers.PlanMicroStops).Methods("POST")

	// Ranking and personas
	api.HandleFunc("/rank", s.handlers.Rank).Methods("POST")
	api.HandleFunc("/users/{userID}/persona", s.handlers.PersonaSnapshot).Methods("GET")

	// Tokens
	api.HandleFunc("/trips/{tripID}/invites", s.handlers.CreateInvite).Methods("POST")
	api.HandleFunc("/invites/{token}/redeem", s.handlers.RedeemInvite).Methods("POST")
	api.HandleFunc("/trips/{tripID}/shares", s.handlers.CreateShare).Methods("POST")
	api.HandleFunc("/shares/{token}", s.handlers.SharedTrip).Methods("GET")

	// Admin subtree, HMAC-gated and rate-limited per admin user.
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/jobs/{job}", s.handlers.RunJob).Methods("POST")

	s.router.NotFoundHandler = s.withRequestID(http.HandlerFunc(s.handlers.NotFound))
}

// requestIDMiddleware adds a unique request id to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return s.withRequestID(next)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), "request_id", requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs every request with its status and duration.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		duration := time.Since(start)

		requestID, _ := r.Context().Value("request_id").(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("request")

		if s.metrics != nil {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			status := strconv.Itoa(wrapper.statusCode)
			s.metrics.RequestDuration.WithLabelValues(route, status[:1]+"xx").Observe(duration.Seconds())
			if wrapper.statusCode >= 400 {
				s.metrics.RequestErrors.WithLabelValues(route, status).Inc()
			}
		}
	})
}

// timeoutMiddleware enforces request timeouts.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// adminAuthMiddleware verifies the HMAC signature headers, then applies the
// per-admin-user rate limit. The verified admin user id travels on the
// context as "admin_user".
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBodyBytes))
		if err != nil {
			s.writeAuthError(w, r, http.StatusBadRequest, "invalid_body", "could not read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		userID, err := s.verifier.Verify(adminauth.Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			RawQuery:  r.URL.RawQuery,
			Timestamp: r.Header.Get(adminauth.HeaderTimestamp),
			UserID:    r.Header.Get(adminauth.HeaderUserID),
			BodyHash:  r.Header.Get(adminauth.HeaderBodyHash),
			Signature: r.Header.Get(adminauth.HeaderSignature),
			Body:      body,
		})
		if err != nil {
			switch {
			case errors.Is(err, adminauth.ErrNotConfigured):
				s.writeAuthError(w, r, http.StatusServiceUnavailable, "admin_unavailable", "admin interface is not configured")
			case errors.Is(err, adminauth.ErrBadPath):
				s.writeAuthError(w, r, http.StatusBadRequest, "bad_path", "request path rejected")
			default:
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("admin signature rejected")
				s.writeAuthError(w, r, http.StatusUnauthorized, "unauthorized", "admin signature rejected")
			}
			return
		}

		if s.limiter != nil && !s.limiter.Allow(r.Context(), "rl:admin:"+userID, s.config.AdminRateLimit, s.config.AdminRateWindow) {
			s.writeAuthError(w, r, http.StatusTooManyRequests, "rate_limited", "admin rate limit exceeded")
			return
		}

		ctx := context.WithValue(r.Context(), "admin_user", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeAuthError emits the standard envelope from middleware, where the
// handlers' helper is out of reach.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value("request_id").(string)
	if requestID == "" {
		requestID = "unknown"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(httpContracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.GetAddress()).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Router exposes the configured router. Test hook.
func (s *Server) Router() http.Handler {
	return s.router
}

// responseWrapper captures HTTP status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
