// Command finsight is the operator CLI: ingest raw transaction
// records, recompute a user's analytics snapshot, print the stored
// snapshot, build a date-filtered dashboard, or serve the JSON API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/analytics"
	"finsight/internal/cli"
	"finsight/internal/config"
	gexport "finsight/internal/export/google"
	api "finsight/internal/http"
	"finsight/internal/log"
	"finsight/internal/services"
	"finsight/internal/storage"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: finsight <command> [flags]

Commands:
  ingest     -user <id> -file <records.ndjson>   ingest raw records
  recompute  -user <id>                          recompute and print the snapshot
  summary    -user <id>                          print the stored snapshot
  dashboard  -user <id> [-from d] [-to d]        print a date-filtered dashboard
  serve      -addr <host:port>                   serve the JSON API
`)
	os.Exit(2)
}

func main() {
	cli.LoadEnvFile()

	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx := context.Background()

	var err error
	switch command {
	case "ingest":
		err = runIngest(ctx, cfg, logger, repo, os.Args[2:])
	case "recompute":
		err = runRecompute(ctx, cfg, logger, repo, os.Args[2:])
	case "summary":
		err = runSummary(ctx, repo, os.Args[2:])
	case "dashboard":
		err = runDashboard(ctx, cfg, logger, repo, os.Args[2:])
	case "serve":
		err = runServe(ctx, cfg, logger, repo, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		logger.Error("Command failed", log.FieldOperation, command, log.FieldError, err)
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, cfg *config.Config, logger *log.Logger, repo *storage.SQLiteRepository, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	userID := fs.String("user", "", "user id to ingest for")
	file := fs.String("file", "", "NDJSON file of raw records (- for stdin)")
	fs.Parse(args)

	if *userID == "" || *file == "" {
		return fmt.Errorf("both -user and -file are required")
	}

	input := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open records file: %w", err)
		}
		defer f.Close()
		input = f
	}

	// The publisher is optional: without a broker the records are still
	// stored and classification happens on the next pending sweep.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, ingesting without events", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	service := services.NewIngestService(repo, publisher, logger)
	result, err := service.IngestNDJSON(ctx, *userID, input)
	if err != nil {
		return err
	}

	fmt.Printf("ingested %d transactions, skipped %d\n", result.Ingested, result.Skipped)
	return nil
}

func runRecompute(ctx context.Context, cfg *config.Config, logger *log.Logger, repo *storage.SQLiteRepository, args []string) error {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	userID := fs.String("user", "", "user id to recompute")
	fs.Parse(args)

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	var exporter analytics.Exporter
	if cfg.ExportEnabled() {
		client, err := gexport.New(ctx, cfg.SnapshotSpreadsheetID, cfg.SnapshotSheetName)
		if err != nil {
			logger.Warn("Snapshot export unavailable", log.FieldError, err)
		} else {
			exporter = client
		}
	}

	engine := analytics.NewEngine(repo, exporter, cfg.AnalyticsConfig(), logger)
	snapshot, err := engine.Recompute(ctx, *userID)
	if err != nil {
		return err
	}

	return printJSON(snapshot)
}

func runSummary(ctx context.Context, repo *storage.SQLiteRepository, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	userID := fs.String("user", "", "user id to read")
	fs.Parse(args)

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	snapshot, err := repo.GetSummary(ctx, *userID)
	if err != nil {
		return err
	}
	return printJSON(snapshot)
}

func runDashboard(ctx context.Context, cfg *config.Config, logger *log.Logger, repo *storage.SQLiteRepository, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	userID := fs.String("user", "", "user id to build the dashboard for")
	fromArg := fs.String("from", "", "start date (YYYY-MM-DD, inclusive)")
	toArg := fs.String("to", "", "end date (YYYY-MM-DD, inclusive)")
	fs.Parse(args)

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}
	from, err := parseDateFlag(*fromArg)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to, err := parseDateFlag(*toArg)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	engine := analytics.NewEngine(repo, nil, cfg.AnalyticsConfig(), logger)
	dashboard, err := engine.Dashboard(ctx, *userID, from, to)
	if err != nil {
		return err
	}
	return printJSON(dashboard)
}

func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

func runServe(ctx context.Context, cfg *config.Config, logger *log.Logger, repo *storage.SQLiteRepository, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.HTTPAddr, "listen address")
	fs.Parse(args)

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, serving without events", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}
	ingestor := services.NewIngestService(repo, publisher, logger)

	var exporter analytics.Exporter
	if cfg.ExportEnabled() {
		client, err := gexport.New(ctx, cfg.SnapshotSpreadsheetID, cfg.SnapshotSheetName)
		if err != nil {
			logger.Warn("Snapshot export unavailable", log.FieldError, err)
		} else {
			exporter = client
		}
	}
	engine := analytics.NewEngine(repo, exporter, cfg.AnalyticsConfig(), logger)

	server := api.NewServer(*addr, repo, ingestor, engine, engine, repo, repo).WithTimeouts()

	shutdownCtx, done := cli.GracefulShutdown(logger, 15*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("Server shutdown failed", log.FieldError, err)
		}
	})

	logger.Info("HTTP server listening", "addr", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	cli.WaitForShutdown(shutdownCtx, done)
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
