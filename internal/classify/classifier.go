package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finsight/internal/cache"
	"finsight/internal/core"
	"finsight/internal/log"
)

// Store is the persistence surface the classifier needs. Apply must be
// a guarded write: it returns false when the transaction gained a user
// or model category after it was read, in which case the new result is
// discarded.
type Store interface {
	PendingClassification(ctx context.Context, userID string, limit int) ([]core.Transaction, error)
	ApplyClassification(ctx context.Context, txID string, result Result) (bool, error)
}

// Classifier assigns categories to unclassified transactions. Model
// results for a merchant are cached so repeat transactions at the same
// merchant do not cost another model call.
type Classifier struct {
	completer Completer
	store     Store
	results   *cache.LRUCache[Result]
	caches    *cache.Manager
	logger    *log.Logger
}

func NewClassifier(completer Completer, store Store, cacheSize int, cacheTTL time.Duration, logger *log.Logger) *Classifier {
	c := &Classifier{
		completer: completer,
		store:     store,
		results:   cache.NewLRUCache[Result](cacheSize, cacheTTL),
		caches:    cache.NewManager(),
		logger:    logger.WithComponent(log.ComponentClassify),
	}
	c.caches.Register(c.results)
	interval := cacheTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	c.caches.StartCleanup(interval)
	return c
}

// Close stops the cache cleanup routine.
func (c *Classifier) Close() {
	c.caches.Stop()
}

// Classify returns a category for the transaction. Transactions that
// already carry a user or model category are returned unchanged with
// applied=false.
func (c *Classifier) Classify(ctx context.Context, tx core.Transaction) (Result, bool, error) {
	if tx.IsClassified() {
		return Result{}, false, nil
	}

	result, err := c.resolve(ctx, tx)
	if err != nil {
		return Result{}, false, err
	}

	applied, err := c.store.ApplyClassification(ctx, tx.ID, result)
	if err != nil {
		return Result{}, false, fmt.Errorf("classify: persist result for %s: %w", tx.ID, err)
	}
	if !applied {
		c.logger.Debug("classification superseded",
			log.FieldTransactionID, tx.ID)
	}
	return result, applied, nil
}

// ProcessPending classifies up to limit unclassified transactions for
// the user. Per-transaction failures are logged and skipped so one bad
// record never blocks the batch.
func (c *Classifier) ProcessPending(ctx context.Context, userID string, limit int) (int, error) {
	pending, err := c.store.PendingClassification(ctx, userID, limit)
	if err != nil {
		return 0, fmt.Errorf("classify: load pending for %s: %w", userID, err)
	}

	applied := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		_, ok, err := c.Classify(ctx, tx)
		if err != nil {
			c.logger.Warn("classification failed",
				log.FieldTransactionID, tx.ID,
				log.FieldError, err)
			continue
		}
		if ok {
			applied++
		}
	}

	c.logger.Info("pending batch classified",
		log.FieldUserID, userID,
		log.FieldCount, applied,
		log.FieldSkipped, len(pending)-applied)
	return applied, nil
}

func (c *Classifier) resolve(ctx context.Context, tx core.Transaction) (Result, error) {
	key := cacheKey(tx)
	if cached, ok := c.results.Get(key); ok {
		return cached, nil
	}

	raw, err := c.completer.Complete(ctx, buildPrompt(tx))
	if err != nil {
		return Result{}, err
	}
	result, err := ParseResult(raw, tx.Amount)
	if err != nil {
		return Result{}, err
	}

	c.results.Set(key, result)
	c.logger.Debug("merchant classified",
		log.FieldMerchantKey, tx.MerchantKey,
		log.FieldCategoryType, string(result.CategoryType),
		log.FieldConfidence, result.Confidence,
		"reason", result.Reason)
	return result, nil
}

func cacheKey(tx core.Transaction) string {
	direction := "out"
	if tx.Amount >= 0 {
		direction = "in"
	}
	return tx.MerchantKey + "|" + direction
}

func buildPrompt(tx core.Transaction) string {
	var b strings.Builder
	b.WriteString("You are a personal-finance transaction classifier.\n\n")
	b.WriteString("Classify the transaction below into exactly one categoryType:\n")
	b.WriteString("- \"mandatory\": essential living costs (rent, utilities, groceries, transport, insurance)\n")
	b.WriteString("- \"optional\": discretionary spending (eating out, entertainment, shopping, travel)\n")
	b.WriteString("- \"savings\": transfers into savings, investments or pension\n")
	b.WriteString("- \"income\": salary, refunds, interest, money received\n")
	b.WriteString("- \"bank_transfer\": movement between the user's own accounts\n\n")
	b.WriteString("Also pick a short lowercase categoryLabel (e.g. \"groceries\", \"rent\", \"subscriptions\")\n")
	b.WriteString("and a one-sentence reason for the choice.\n\n")
	b.WriteString("Transaction:\n")
	fmt.Fprintf(&b, "- merchant: %s\n", tx.MerchantName)
	if tx.Description != "" && tx.Description != tx.MerchantName {
		fmt.Fprintf(&b, "- description: %s\n", tx.Description)
	}
	fmt.Fprintf(&b, "- amount: %.2f %s\n", tx.Amount, tx.Currency)
	if tx.ProviderCategory != "" {
		fmt.Fprintf(&b, "- bank category hint: %s\n", tx.ProviderCategory)
	}
	b.WriteString("\nReturn ONLY valid raw JSON, no Markdown, no code fences:\n")
	b.WriteString(`{"categoryType": "...", "categoryLabel": "...", "confidence": 0.0, "reason": "..."}` + "\n")
	return b.String()
}
