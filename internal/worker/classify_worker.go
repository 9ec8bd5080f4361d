// Package worker runs the background consumers: event-driven
// classification and scheduled analytics recomputation.
package worker

import (
	"context"
	"fmt"
	"sync"

	"finsight/internal/amqp"
	"finsight/internal/classify"
	"finsight/internal/core"
	"finsight/internal/log"
)

// TransactionGetter fetches one stored transaction by id.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, txID string) (core.Transaction, error)
}

// TransactionClassifier assigns a category to one transaction.
type TransactionClassifier interface {
	Classify(ctx context.Context, tx core.Transaction) (classify.Result, bool, error)
}

// Consumer delivers transaction-created events until its context is
// cancelled.
type Consumer interface {
	ConsumeTransactionCreated(ctx context.Context, handler func(*amqp.TransactionCreatedMessage) error) error
}

// ClassifyWorker consumes transaction-created events and runs the
// classifier against each referenced transaction.
type ClassifyWorker struct {
	storage    TransactionGetter
	classifier TransactionClassifier
	consumer   Consumer
	logger     *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClassifyWorker(storage TransactionGetter, classifier TransactionClassifier, consumer Consumer, logger *log.Logger) *ClassifyWorker {
	return &ClassifyWorker{
		storage:    storage,
		classifier: classifier,
		consumer:   consumer,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// HandleTransactionCreated processes one event. The transaction is
// re-read from storage so classification sees the latest state, and a
// row that gained a manual category since the event was published is
// skipped.
func (w *ClassifyWorker) HandleTransactionCreated(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	tx, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", msg.TransactionID, err)
	}
	if tx.UserID != msg.UserID {
		return fmt.Errorf("transaction %s does not belong to user %s", msg.TransactionID, msg.UserID)
	}

	result, applied, err := w.classifier.Classify(ctx, tx)
	if err != nil {
		return fmt.Errorf("classify transaction %s: %w", msg.TransactionID, err)
	}

	w.logger.Info("classification handled",
		log.FieldUserID, msg.UserID,
		log.FieldTransactionID, msg.TransactionID,
		log.FieldCategoryType, string(result.CategoryType),
		log.FieldCategoryLabel, result.Label,
		"applied", applied)

	return nil
}

// Start begins consuming in the background. It returns immediately;
// use Stop for a graceful shutdown.
func (w *ClassifyWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		err := w.consumer.ConsumeTransactionCreated(runCtx, func(msg *amqp.TransactionCreatedMessage) error {
			return w.HandleTransactionCreated(runCtx, msg)
		})
		if err != nil && runCtx.Err() == nil {
			w.logger.Error("consumer stopped unexpectedly", log.FieldError, err)
		}
	}()

	w.logger.Info("classification worker started")
}

// Stop cancels the consumer and waits for it to drain.
func (w *ClassifyWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("classification worker stopped")
}
