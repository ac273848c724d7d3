package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/batch"
	"github.com/kevindtbd/overplanned-sub003/internal/config"
	"github.com/kevindtbd/overplanned-sub003/internal/infrastructure/db"
	"github.com/kevindtbd/overplanned-sub003/internal/logging"
)

// runNightly executes the batch jobs for one UTC day window and exits.
func runNightly(configPath string, verbose bool, job, date string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(verbose || cfg.Log.Verbose, cfg.Log.FilePath)

	if date != "" {
		if _, err := time.Parse(batch.DateLayout, date); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	// Batch runs hold at most one connection per job; the pool stays small.
	dbCfg := cfg.Database
	batchCfg := db.BatchConfig()
	dbCfg.MaxOpenConns = batchCfg.MaxOpenConns
	dbCfg.MaxIdleConns = batchCfg.MaxIdleConns

	manager, err := db.NewManager(dbCfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The nightly process has no scrape endpoint, so job metrics stay off.
	runner := batch.NewRunner(manager.DB(), cfg.Batch.ExtractOutputDir, nil)

	start := time.Now()
	if err := runner.Run(ctx, job, date); err != nil {
		return err
	}
	log.Info().
		Str("job", job).
		Str("date", date).
		Dur("took", time.Since(start)).
		Msg("nightly run finished")
	return nil
}
