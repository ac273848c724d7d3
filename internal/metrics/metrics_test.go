package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, r *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.gatherer.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func gaugeValue(t *testing.T, r *Registry, name string) float64 {
	t.Helper()
	families, err := r.gatherer.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name && len(fam.GetMetric()) > 0 {
			return fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestRegistry_SignalCounters(t *testing.T) {
	r := New()
	r.SignalRecorded("slot_confirm", "active")
	r.SignalRecorded("slot_confirm", "active")
	r.OffPlanOutcome("queued")

	assert.Equal(t, 2.0, counterValue(t, r, "overplanned_signals_recorded_total",
		map[string]string{"signal_type": "slot_confirm", "trip_phase": "active"}))
	assert.Equal(t, 1.0, counterValue(t, r, "overplanned_offplan_outcomes_total",
		map[string]string{"outcome": "queued"}))
}

func TestRegistry_CacheHitRatio(t *testing.T) {
	r := New()
	r.RecordCacheHit("weather")
	r.RecordCacheHit("weather")
	r.RecordCacheHit("weather")
	r.RecordCacheMiss("weather")

	assert.InDelta(t, 0.75, gaugeValue(t, r, "overplanned_cache_hit_ratio"), 1e-9)
}

func TestRegistry_HandlerServesMetrics(t *testing.T) {
	r := New()
	r.RecordBatchRun("write_back", "success", 1.25)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "overplanned_batch_runs_total")
}

func TestRegistry_ShadowOverlapOnlyOnCompleted(t *testing.T) {
	r := New()
	r.RecordShadowRun("timeout", 0)
	r.RecordShadowRun("completed", 0.6)

	families, err := r.gatherer.Gather()
	require.NoError(t, err)

	var overlap *io_prometheus_client.MetricFamily
	for _, fam := range families {
		if fam.GetName() == "overplanned_shadow_overlap_at_k" {
			overlap = fam
		}
	}
	require.NotNil(t, overlap)
	assert.Equal(t, uint64(1), overlap.GetMetric()[0].GetHistogram().GetSampleCount())
}
