package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kevindtbd/overplanned-sub003/internal/adminauth"
	"github.com/kevindtbd/overplanned-sub003/internal/batch"
	"github.com/kevindtbd/overplanned-sub003/internal/config"
	"github.com/kevindtbd/overplanned-sub003/internal/infrastructure/cache"
	"github.com/kevindtbd/overplanned-sub003/internal/infrastructure/db"
	httpserver "github.com/kevindtbd/overplanned-sub003/internal/interfaces/http"
	"github.com/kevindtbd/overplanned-sub003/internal/interfaces/http/handlers"
	"github.com/kevindtbd/overplanned-sub003/internal/itinerary"
	"github.com/kevindtbd/overplanned-sub003/internal/logging"
	"github.com/kevindtbd/overplanned-sub003/internal/metrics"
	"github.com/kevindtbd/overplanned-sub003/internal/persistence/postgres"
	"github.com/kevindtbd/overplanned-sub003/internal/ranking"
	"github.com/kevindtbd/overplanned-sub003/internal/shadow"
	sigpipe "github.com/kevindtbd/overplanned-sub003/internal/signal"
	"github.com/kevindtbd/overplanned-sub003/internal/token"
	"github.com/kevindtbd/overplanned-sub003/internal/weather"
)

// runServe wires the request service and blocks until shutdown.
func runServe(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(verbose || cfg.Log.Verbose, cfg.Log.FilePath)

	reg := metrics.New()

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer manager.Close()
	repos := manager.Repository()

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		// The weather cache and admin rate limit degrade without Redis; the
		// core endpoints do not.
		log.Warn().Err(err).Msg("redis unavailable, weather cache and admin rate limit degraded")
		redisCache = nil
	}

	var weatherCache weather.Cache
	var limiter httpserver.RateLimiter
	if redisCache != nil {
		weatherCache = redisCache.WithMeters(
			func() { reg.RecordCacheHit("weather") },
			func() { reg.RecordCacheMiss("weather") },
		)
		limiter = redisCache
	}
	weatherClient := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, weatherCache)

	var advisor itinerary.OutdoorRiskAdvisor
	if cfg.Weather.APIKey != "" {
		advisor = weatherClient
	}

	shadowRunner := shadow.NewRunner(cfg.Shadow.Enabled, loadShadowModel(cfg.Shadow), repos.Shadow, cfg.Shadow.Timeout, reg)
	if shadowRunner.Active() {
		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := repos.Shadow.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shadow schema: %w", err)
		}
	}

	h := &handlers.Handlers{
		Repos:      repos,
		Pipeline:   sigpipe.NewPipeline(repos.Signals, repos.Intentions, repos.Ingestion, reg),
		Resolver:   postgres.NewPlaceResolver(manager.DB(), cfg.Database.QueryTimeout),
		Pivot:      itinerary.NewPivotService(repos.Slots, repos.Trips),
		MicroStops: itinerary.NewMicroStopPlanner(repos.Slots, repos.Nodes, repos.Trips, advisor),
		Tokens:     token.NewService(repos.Tokens, repos.Trips),
		Shadow:     shadowRunner,
		PostFilter: ranking.PostFilter{TouristEnabled: cfg.Ranking.TouristFilterEnabled},
		Batch:      batch.NewRunner(manager.DB(), cfg.Batch.ExtractOutputDir, reg),
		Health:     manager.Health(),
	}

	server, err := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.HTTP.Host,
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		AdminRateLimit:  cfg.Admin.RateLimitPerMin,
		AdminRateWindow: cfg.Admin.RateLimitWindow,
	}, h, adminauth.NewVerifier(cfg.Admin.Secret), limiter, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		shadowRunner.Wait()
		return nil
	})

	log.Info().Str("addr", server.GetAddress()).Str("version", version).Msg("request service up")
	return g.Wait()
}

// loadShadowModel resolves the configured shadow model. Model binaries ship
// out of band; an unknown id leaves the runner inactive.
func loadShadowModel(cfg config.ShadowConfig) shadow.Model {
	if !cfg.Enabled || cfg.ModelID == "" {
		return nil
	}
	log.Warn().Str("model_id", cfg.ModelID).Msg("no loader for shadow model, runner stays inactive")
	return nil
}
