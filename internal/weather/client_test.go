package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 2, 22, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
}

const rainPayload = `{"weather":[{"id":501,"main":"Rain","description":"moderate rain"}],"main":{"temp":288.75}}`

func TestClient_CurrentParsesAndCachesVerbatim(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(rainPayload))
	}))
	defer srv.Close()

	cache := newMemCache()
	c := NewClient(srv.URL, "test-key", cache).WithClock(fixedClock())

	report, ok := c.Current(context.Background(), "São Paulo")
	require.True(t, ok)
	assert.Equal(t, "/weather", gotPath)
	assert.Contains(t, gotQuery, "appid=test-key")
	assert.Equal(t, 15.6, report.TempCelsius)
	assert.Equal(t, ConditionRain, report.Condition)
	assert.Equal(t, 501, report.ConditionCode)

	// Cached verbatim under the slugged hour key.
	raw, hit := cache.Get(context.Background(), "weather:sao-paulo:20260222_09")
	require.True(t, hit)
	assert.Equal(t, rainPayload, string(raw))
}

func TestClient_CacheHitSkipsProvider(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(rainPayload))
	}))
	defer srv.Close()

	cache := newMemCache()
	c := NewClient(srv.URL, "k", cache).WithClock(fixedClock())

	_, ok := c.Current(context.Background(), "Tokyo")
	require.True(t, ok)
	_, ok = c.Current(context.Background(), "Tokyo")
	require.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.sets)
}

func TestClient_StatusErrorDegradesToNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", nil).WithClock(fixedClock())
	_, ok := c.Current(context.Background(), "Lima")
	assert.False(t, ok)
}

func TestClient_TransportErrorDegradesToNoData(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", nil).WithClock(fixedClock())
	_, ok := c.Current(context.Background(), "Lima")
	assert.False(t, ok)
}

func TestClient_OutdoorRisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rainPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", newMemCache()).WithClock(fixedClock())
	ctx := context.Background()

	assert.True(t, c.OutdoorRisk(ctx, "Kyoto", "outdoors"))
	assert.True(t, c.OutdoorRisk(ctx, "Kyoto", "active"))
	assert.False(t, c.OutdoorRisk(ctx, "Kyoto", "dining"))
}

func TestClient_OutdoorRiskDegradesOpen(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", nil).WithClock(fixedClock())
	assert.False(t, c.OutdoorRisk(context.Background(), "Kyoto", "outdoors"))
}

func TestClassifyRanges(t *testing.T) {
	tests := []struct {
		code int
		want Condition
	}{
		{200, ConditionStorm}, {232, ConditionStorm},
		{300, ConditionDrizzle}, {321, ConditionDrizzle},
		{500, ConditionRain}, {531, ConditionRain},
		{600, ConditionSnow}, {622, ConditionSnow},
		{800, ConditionClear}, {199, ConditionClear}, {532, ConditionClear},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.code), "code %d", tt.code)
	}
}

func TestCelsiusFromKelvin(t *testing.T) {
	assert.Equal(t, 0.0, CelsiusFromKelvin(273.15))
	assert.Equal(t, 15.6, CelsiusFromKelvin(288.75))
	assert.Equal(t, -10.0, CelsiusFromKelvin(263.15))
}
