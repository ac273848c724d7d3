// Package config builds the immutable application configuration: defaults,
// an optional YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kevindtbd/overplanned-sub003/internal/infrastructure/cache"
	"github.com/kevindtbd/overplanned-sub003/internal/infrastructure/db"
)

// HTTPConfig holds the request-service listener settings.
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// WeatherConfig holds the provider client settings.
type WeatherConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// AdminConfig holds the HMAC boundary settings.
type AdminConfig struct {
	Secret          string        `yaml:"secret"`
	RateLimitPerMin int64         `yaml:"rate_limit_per_min"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// ShadowConfig holds the shadow-ranker flag and task budget.
type ShadowConfig struct {
	Enabled bool          `yaml:"enabled"`
	ModelID string        `yaml:"model_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// RankingConfig holds the post-filter flags.
type RankingConfig struct {
	// TouristFilterEnabled arms the transitional tourist correction. Off by
	// default; the thresholds are deliberately conservative.
	TouristFilterEnabled bool `yaml:"tourist_filter_enabled"`
}

// BatchConfig holds nightly-job settings.
type BatchConfig struct {
	ExtractOutputDir string `yaml:"extract_output_dir"`
}

// LogConfig holds logging sink settings.
type LogConfig struct {
	Verbose  bool   `yaml:"verbose"`
	FilePath string `yaml:"file_path"`
}

// AppConfig is the root configuration, built once at startup and treated as
// immutable afterwards.
type AppConfig struct {
	HTTP     HTTPConfig    `yaml:"http"`
	Database db.Config     `yaml:"database"`
	Redis    cache.Config  `yaml:"redis"`
	Weather  WeatherConfig `yaml:"weather"`
	Admin    AdminConfig   `yaml:"admin"`
	Shadow   ShadowConfig  `yaml:"shadow"`
	Ranking  RankingConfig `yaml:"ranking"`
	Batch    BatchConfig   `yaml:"batch"`
	Log      LogConfig     `yaml:"log"`
}

// Default returns the baseline configuration.
func Default() AppConfig {
	return AppConfig{
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: db.DefaultConfig(),
		Redis:    cache.Config{Addr: "127.0.0.1:6379"},
		Weather:  WeatherConfig{BaseURL: "https://api.openweathermap.org/data/2.5"},
		Admin: AdminConfig{
			RateLimitPerMin: 60,
			RateLimitWindow: time.Minute,
		},
		Shadow:  ShadowConfig{Timeout: 10 * time.Second},
		Ranking: RankingConfig{},
		Batch:   BatchConfig{ExtractOutputDir: "./out/training"},
		Log:     LogConfig{FilePath: "./logs/overplanned.log"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// it exists), then environment overrides. A .env file in the working
// directory is folded into the environment first, best-effort.
func Load(path string) (AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return AppConfig{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// applyEnvOverrides folds deployment environment variables over the file
// values. Only the knobs operators actually flip at deploy time get one.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WEATHER_BASE_URL"); v != "" {
		cfg.Weather.BaseURL = v
	}
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("ADMIN_HMAC_SECRET"); v != "" {
		cfg.Admin.Secret = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("SHADOW_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Shadow.Enabled = b
		}
	}
	if v := os.Getenv("TOURIST_FILTER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ranking.TouristFilterEnabled = b
		}
	}
	if v := os.Getenv("EXTRACT_OUTPUT_DIR"); v != "" {
		cfg.Batch.ExtractOutputDir = v
	}
}

// Validate rejects configurations the process cannot run with.
func (c AppConfig) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be positive")
	}
	if c.Batch.ExtractOutputDir == "" {
		return fmt.Errorf("batch.extract_output_dir is required")
	}
	return nil
}
