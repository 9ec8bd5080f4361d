// Package services orchestrates ingestion across storage and
// messaging.
package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/normalize"
)

// TransactionUpserter persists a batch of normalised transactions.
type TransactionUpserter interface {
	UpsertTransactions(ctx context.Context, transactions []core.Transaction) error
}

// Publisher announces freshly ingested transactions for downstream
// classification. A nil publisher disables the announcements.
type Publisher interface {
	PublishTransactionCreated(ctx context.Context, userID, transactionID string) error
}

// IngestService normalises raw provider records, stores them, and
// publishes one event per stored transaction.
type IngestService struct {
	storage   TransactionUpserter
	publisher Publisher
	logger    *log.Logger
}

func NewIngestService(storage TransactionUpserter, publisher Publisher, logger *log.Logger) *IngestService {
	return &IngestService{
		storage:   storage,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentNormalize),
	}
}

// IngestResult reports the outcome of one ingestion batch.
type IngestResult struct {
	Ingested int
	Skipped  int
}

// IngestRecords normalises and stores a batch. Malformed records are
// skipped and counted, never fatal; a storage failure is.
func (s *IngestService) IngestRecords(ctx context.Context, userID string, records []normalize.Record) (IngestResult, error) {
	var result IngestResult

	transactions := make([]core.Transaction, 0, len(records))
	for _, record := range records {
		tx, err := normalize.Normalize(userID, record)
		if err != nil {
			if errors.Is(err, core.ErrSkipRecord) {
				result.Skipped++
				s.logger.Warn("skipping malformed record",
					log.FieldUserID, userID,
					log.FieldError, err)
				continue
			}
			return result, fmt.Errorf("normalize record: %w", err)
		}
		transactions = append(transactions, tx)
	}

	return s.finish(ctx, userID, transactions, result)
}

// IngestNDJSON reads newline-delimited JSON records and ingests them.
func (s *IngestService) IngestNDJSON(ctx context.Context, userID string, r io.Reader) (IngestResult, error) {
	var result IngestResult

	var transactions []core.Transaction
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		payload := strings.TrimSpace(scanner.Text())
		if payload == "" {
			continue
		}
		tx, err := normalize.NormalizeJSON(userID, []byte(payload))
		if err != nil {
			if errors.Is(err, core.ErrSkipRecord) {
				result.Skipped++
				s.logger.Warn("skipping malformed record",
					log.FieldUserID, userID,
					"line", line,
					log.FieldError, err)
				continue
			}
			return result, fmt.Errorf("normalize line %d: %w", line, err)
		}
		transactions = append(transactions, tx)
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read records: %w", err)
	}

	return s.finish(ctx, userID, transactions, result)
}

// finish stores the batch and publishes one event per transaction.
// Publish failures are non-fatal; classification catches up on the
// next pending sweep.
func (s *IngestService) finish(ctx context.Context, userID string, transactions []core.Transaction, result IngestResult) (IngestResult, error) {
	if err := s.storage.UpsertTransactions(ctx, transactions); err != nil {
		return result, fmt.Errorf("store transactions: %w", err)
	}
	result.Ingested = len(transactions)

	if s.publisher != nil {
		for _, tx := range transactions {
			if err := s.publisher.PublishTransactionCreated(ctx, userID, tx.ID); err != nil {
				s.logger.Warn("failed to publish transaction created event",
					log.FieldUserID, userID,
					log.FieldTransactionID, tx.ID,
					log.FieldError, err)
			}
		}
	}

	s.logger.Info("ingestion batch complete",
		log.FieldUserID, userID,
		log.FieldCount, result.Ingested,
		log.FieldSkipped, result.Skipped)

	return result, nil
}
