package shadow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type stubModel struct {
	id      string
	version string
	ranking []string
	err     error
	panics  bool
}

func (m stubModel) ID() string      { return m.id }
func (m stubModel) Version() string { return m.version }

func (m stubModel) Predict(context.Context, string, []string) ([]string, error) {
	if m.panics {
		panic("model exploded")
	}
	return m.ranking, m.err
}

type memShadowRepo struct {
	mu   sync.Mutex
	rows []*persistence.ShadowResult
}

func (m *memShadowRepo) EnsureSchema(context.Context) error { return nil }

func (m *memShadowRepo) Insert(_ context.Context, r *persistence.ShadowResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memShadowRepo) all() []*persistence.ShadowResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*persistence.ShadowResult(nil), m.rows...)
}

type recordingMeter struct {
	mu       sync.Mutex
	outcomes []string
	overlaps []float64
}

func (m *recordingMeter) RecordShadowRun(outcome string, overlap float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	m.overlaps = append(m.overlaps, overlap)
}

func TestMaybeRunPersistsResult(t *testing.T) {
	repo := &memShadowRepo{}
	model := stubModel{id: "two-tower", version: "v3", ranking: []string{"b", "a", "x"}}
	r := NewRunner(true, model, repo, time.Second, nil)

	production := []string{"a", "b", "c"}
	r.MaybeRun(context.Background(), "user-1", production, []string{"a", "b", "c", "x"})
	r.Wait()

	rows := repo.all()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "two-tower", row.ModelID)
	assert.Equal(t, "v3", row.ModelVersion)
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, OverlapAtK([]string{"b", "a", "x"}, production, OverlapK), row.OverlapAt5)
	assert.Equal(t, NDCGAtK([]string{"b", "a", "x"}, production, NDCGK), row.NDCGAt10)
	assert.GreaterOrEqual(t, row.LatencyMs, int64(0))

	var stored []string
	require.NoError(t, json.Unmarshal([]byte(row.ShadowRankings), &stored))
	assert.Equal(t, []string{"b", "a", "x"}, stored)
	require.NoError(t, json.Unmarshal([]byte(row.ProductionRankings), &stored))
	assert.Equal(t, production, stored)
}

func TestMaybeRunNoModelFastPath(t *testing.T) {
	repo := &memShadowRepo{}

	// Neither the flag alone nor a bare runner evaluates anything.
	for _, enabled := range []bool{true, false} {
		r := NewRunner(enabled, nil, repo, time.Second, nil)
		assert.False(t, r.Active())
		r.MaybeRun(context.Background(), "u", []string{"a"}, []string{"a"})
		r.Wait()
		assert.Empty(t, repo.all())
	}
}

func TestMaybeRunInjectedModelRunsWithFlagOff(t *testing.T) {
	repo := &memShadowRepo{}
	r := NewRunner(false, stubModel{id: "m", ranking: []string{"a"}}, repo, time.Second, nil)

	assert.True(t, r.Active())
	r.MaybeRun(context.Background(), "u", []string{"a"}, []string{"a"})
	r.Wait()
	assert.Len(t, repo.all(), 1)
}

func TestMaybeRunMetersOutcomes(t *testing.T) {
	repo := &memShadowRepo{}
	meter := &recordingMeter{}

	model := stubModel{id: "m", ranking: []string{"a", "b"}}
	r := NewRunner(true, model, repo, time.Second, meter)
	production := []string{"a", "b"}
	r.MaybeRun(context.Background(), "u", production, production)
	r.Wait()

	require.Equal(t, []string{OutcomeCompleted}, meter.outcomes)
	assert.Equal(t, OverlapAtK([]string{"a", "b"}, production, OverlapK), meter.overlaps[0])

	meter = &recordingMeter{}
	r = NewRunner(true, stubModel{id: "m", err: errors.New("cold start")}, repo, time.Second, meter)
	r.MaybeRun(context.Background(), "u", production, production)
	r.Wait()
	assert.Equal(t, []string{OutcomePredictError}, meter.outcomes)

	meter = &recordingMeter{}
	r = NewRunner(true, stubModel{id: "m", panics: true}, repo, time.Second, meter)
	r.MaybeRun(context.Background(), "u", production, production)
	r.Wait()
	assert.Equal(t, []string{OutcomePanicked}, meter.outcomes)
}

func TestMaybeRunPredictErrorYieldsNoRow(t *testing.T) {
	repo := &memShadowRepo{}
	r := NewRunner(true, stubModel{id: "m", err: errors.New("cold start")}, repo, time.Second, nil)

	r.MaybeRun(context.Background(), "u", []string{"a"}, []string{"a"})
	r.Wait()
	assert.Empty(t, repo.all())
}

func TestMaybeRunRecoversPanic(t *testing.T) {
	repo := &memShadowRepo{}
	r := NewRunner(true, stubModel{id: "m", panics: true}, repo, time.Second, nil)

	require.NotPanics(t, func() {
		r.MaybeRun(context.Background(), "u", []string{"a"}, []string{"a"})
		r.Wait()
	})
	assert.Empty(t, repo.all())
}

func TestMaybeRunSnapshotsInputs(t *testing.T) {
	repo := &memShadowRepo{}
	model := stubModel{id: "m", ranking: []string{"a"}}
	r := NewRunner(true, model, repo, time.Second, nil)

	production := []string{"a", "b"}
	r.MaybeRun(context.Background(), "u", production, []string{"a", "b"})
	production[0] = "mutated"
	r.Wait()

	rows := repo.all()
	require.Len(t, rows, 1)
	var stored []string
	require.NoError(t, json.Unmarshal([]byte(rows[0].ProductionRankings), &stored))
	assert.Equal(t, []string{"a", "b"}, stored, "the task sees the snapshot, not the caller's slice")
}
