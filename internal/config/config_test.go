package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, int64(60), cfg.Admin.RateLimitPerMin)
	assert.False(t, cfg.Ranking.TouristFilterEnabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http:
  port: 9090
shadow:
  enabled: true
  model_id: bpr-2026-02
ranking:
  tourist_filter_enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.True(t, cfg.Shadow.Enabled)
	assert.Equal(t, "bpr-2026-02", cfg.Shadow.ModelID)
	assert.True(t, cfg.Ranking.TouristFilterEnabled)
	// Untouched sections keep defaults.
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weather:\n  api_key: from-file\n"), 0o644))

	t.Setenv("WEATHER_API_KEY", "from-env")
	t.Setenv("DATABASE_URL", "postgres://env/overplanned")
	t.Setenv("SHADOW_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Weather.APIKey)
	assert.Equal(t, "postgres://env/overplanned", cfg.Database.DSN)
	assert.True(t, cfg.Shadow.Enabled)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	bad := Default()
	bad.HTTP.Port = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Batch.ExtractOutputDir = ""
	assert.Error(t, bad.Validate())
}
