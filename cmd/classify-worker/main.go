// Command classify-worker consumes transaction-created events and
// assigns categories with the Gemini model.
package main

import (
	"context"
	"os"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/classify"
	"finsight/internal/cli"
	"finsight/internal/config"
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
	logger.Info("Starting classify-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	completer, err := classify.NewGeminiCompleter(context.Background(), cfg.GeminiModel)
	if err != nil {
		logger.Error("Failed to initialize Gemini completer", log.FieldError, err)
		os.Exit(1)
	}

	classifier := classify.NewClassifier(completer, repo, cfg.ClassifyCacheSize, cfg.ClassifyCacheTTL, logger)
	classifyWorker := worker.NewClassifyWorker(repo, classifier, amqpClient, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		classifyWorker.Stop()
		classifier.Close()
	})

	// Catch up on anything that queued while the worker was down.
	sweepPending(ctx, logger, repo, classifier, cfg.ClassifyBatchSize)

	classifyWorker.Start(ctx)

	cli.WaitForShutdown(ctx, done)
}

func sweepPending(ctx context.Context, logger *log.Logger, repo interface {
	UserIDs(ctx context.Context) ([]string, error)
}, classifier *classify.Classifier, batchSize int) {
	userIDs, err := repo.UserIDs(ctx)
	if err != nil {
		logger.Warn("Startup pending sweep skipped", log.FieldError, err)
		return
	}
	for _, userID := range userIDs {
		classified, err := classifier.ProcessPending(ctx, userID, batchSize)
		if err != nil {
			logger.Warn("Pending classification sweep failed",
				log.FieldUserID, userID,
				log.FieldError, err)
			continue
		}
		if classified > 0 {
			logger.Info("Classified pending transactions",
				log.FieldUserID, userID,
				log.FieldCount, classified)
		}
	}
}
