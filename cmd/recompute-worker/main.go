// Command recompute-worker recomputes every user's analytics snapshot
// on a cron schedule.
package main

import (
	"context"
	"os"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/cli"
	"finsight/internal/config"
	gexport "finsight/internal/export/google"
	"finsight/internal/log"
	"finsight/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Starting recompute-worker", "schedule", cfg.RecomputeSchedule)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var exporter analytics.Exporter
	if cfg.ExportEnabled() {
		client, err := gexport.New(context.Background(), cfg.SnapshotSpreadsheetID, cfg.SnapshotSheetName)
		if err != nil {
			logger.Warn("Snapshot export unavailable, continuing without it", log.FieldError, err)
		} else {
			exporter = client
			logger.Info("Snapshot export enabled", "spreadsheet_id", cfg.SnapshotSpreadsheetID)
		}
	}

	engine := analytics.NewEngine(repo, exporter, cfg.AnalyticsConfig(), logger)
	recomputeWorker := worker.NewRecomputeWorker(repo, engine, cfg.RecomputeSchedule, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		recomputeWorker.Stop()
	})

	// An immediate sweep keeps fresh deployments from waiting a full
	// schedule interval for their first snapshots.
	if err := recomputeWorker.SweepAll(ctx); err != nil {
		logger.Warn("Initial recomputation sweep had failures", log.FieldError, err)
	}

	if err := recomputeWorker.Start(ctx); err != nil {
		logger.Error("Failed to start recomputation worker", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
