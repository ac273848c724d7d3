// Package metrics holds the Prometheus registry for the itinerary core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"
)

// Registry holds all Prometheus metrics for the service.
type Registry struct {
	// Signal pipeline
	SignalsRecorded *prometheus.CounterVec
	OffPlanOutcomes *prometheus.CounterVec

	// HTTP surface
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Weather cache
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Nightly jobs
	BatchRuns     *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec

	// Shadow ranker
	ShadowRuns    *prometheus.CounterVec
	ShadowOverlap prometheus.Histogram

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// New creates a registry backed by its own Prometheus registry, so tests can
// build registries without double-registration panics.
func New() *Registry {
	reg := prometheus.NewRegistry()
	return newWith(reg, reg)
}

func newWith(reg prometheus.Registerer, gather prometheus.Gatherer) *Registry {
	r := &Registry{
		SignalsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_signals_recorded_total",
				Help: "Behavioral signals accepted by the pipeline",
			},
			[]string{"signal_type", "trip_phase"},
		),
		OffPlanOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_offplan_outcomes_total",
				Help: "Off-plan add outcomes (recorded, queued, duplicate)",
			},
			[]string{"outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overplanned_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status class",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route", "status"},
		),
		RequestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_http_errors_total",
				Help: "HTTP error responses by route and status code",
			},
			[]string{"route", "code"},
		),
		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "overplanned_cache_hit_ratio",
				Help: "Weather payload cache hit ratio (0.0 to 1.0)",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache_type"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache_type"},
		),
		BatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_batch_runs_total",
				Help: "Nightly job completions by job and status",
			},
			[]string{"job", "status"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overplanned_batch_duration_seconds",
				Help:    "Nightly job duration in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		),
		ShadowRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overplanned_shadow_runs_total",
				Help: "Shadow ranker evaluations by outcome",
			},
			[]string{"outcome"},
		),
		ShadowOverlap: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "overplanned_shadow_overlap_at_k",
				Help:    "Top-K overlap between production and shadow rankings",
				Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0},
			},
		),
		registerer: reg,
		gatherer:   gather,
	}

	reg.MustRegister(
		r.SignalsRecorded,
		r.OffPlanOutcomes,
		r.RequestDuration,
		r.RequestErrors,
		r.CacheHitRatio,
		r.CacheHits,
		r.CacheMisses,
		r.BatchRuns,
		r.BatchDuration,
		r.ShadowRuns,
		r.ShadowOverlap,
	)

	return r
}

// SignalRecorded implements the pipeline's counter surface.
func (r *Registry) SignalRecorded(signalType, tripPhase string) {
	r.SignalsRecorded.WithLabelValues(signalType, tripPhase).Inc()
}

// OffPlanOutcome implements the pipeline's counter surface.
func (r *Registry) OffPlanOutcome(outcome string) {
	r.OffPlanOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a cache hit and refreshes the ratio gauge.
func (r *Registry) RecordCacheHit(cacheType string) {
	r.CacheHits.WithLabelValues(cacheType).Inc()
	r.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss and refreshes the ratio gauge.
func (r *Registry) RecordCacheMiss(cacheType string) {
	r.CacheMisses.WithLabelValues(cacheType).Inc()
	r.updateCacheHitRatio()
}

// cacheTypes enumerates the label values the ratio gauge sums over.
var cacheTypes = []string{"weather"}

// updateCacheHitRatio reads the hit/miss counters back and publishes the
// combined ratio.
func (r *Registry) updateCacheHitRatio() {
	var m io_prometheus_client.Metric

	totalHits := 0.0
	totalMisses := 0.0
	for _, cacheType := range cacheTypes {
		if c, err := r.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := c.Write(&m); err == nil {
				totalHits += m.GetCounter().GetValue()
			}
		}
		if c, err := r.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := c.Write(&m); err == nil {
				totalMisses += m.GetCounter().GetValue()
			}
		}
	}

	if total := totalHits + totalMisses; total > 0 {
		r.CacheHitRatio.Set(totalHits / total)
	}
}

// RecordBatchRun records a nightly job completion.
func (r *Registry) RecordBatchRun(job, status string, durationSeconds float64) {
	r.BatchRuns.WithLabelValues(job, status).Inc()
	r.BatchDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordShadowRun records a shadow evaluation outcome. overlap is only
// observed for completed runs.
func (r *Registry) RecordShadowRun(outcome string, overlap float64) {
	r.ShadowRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		r.ShadowOverlap.Observe(overlap)
	}
}

// Handler returns the /metrics endpoint for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
