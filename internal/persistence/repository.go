package persistence

import (
	"context"
	"time"
)

// Repository bundles every repo the service wires at startup.
type Repository struct {
	Signals    SignalRepo
	Intentions IntentionRepo
	Ingestion  IngestionRepo
	Slots      SlotRepo
	Nodes      NodeRepo
	Personas   PersonaRepo
	Fairness   FairnessRepo
	Trips      TripRepo
	Shadow     ShadowRepo
	Tokens     TokenRepo
}

// HealthCheck is one point-in-time storage health reading.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth reports on the storage layer backing the repositories.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
