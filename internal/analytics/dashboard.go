package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"finsight/internal/core"
	"finsight/internal/log"
)

// Dashboard is the on-demand, date-filtered fold over a user's
// transactions: per-bucket, per-category, per-theme and per-goal
// totals with the goal funding view. Unlike the snapshot it is never
// persisted; it is computed per request.
type Dashboard struct {
	OwnerUID      string              `json:"ownerUid"`
	From          string              `json:"from,omitempty"`
	To            string              `json:"to,omitempty"`
	Aggregation   Aggregation         `json:"aggregation"`
	GoalProgress  []GoalProgressEntry `json:"goalProgress"`
	ThemeProgress []ThemeProgress     `json:"themeProgress"`
	Currency      string              `json:"currency"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

// Dashboard folds the user's transactions inside the optional
// inclusive [from, to] window. A zero from falls back to the engine's
// history window; a zero to leaves the range open-ended.
func (e *Engine) Dashboard(ctx context.Context, userID string, from, to time.Time) (*Dashboard, error) {
	if userID == "" {
		return nil, fmt.Errorf("analytics: dashboard requires a user id")
	}

	now := e.now()
	since := from
	if since.IsZero() {
		since = now.UTC().AddDate(0, -e.cfg.HistoryMonths, 0)
	}

	var (
		transactions []core.Transaction
		goals        []core.Goal
		pots         []core.Pot
		currency     string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = e.store.TransactionsSince(gctx, userID, since)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = e.store.Goals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		pots, err = e.store.Pots(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		_, currency, err = e.store.BudgetConfig(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analytics: load dashboard inputs for %s: %w", userID, err)
	}
	if currency == "" {
		currency = "GBP"
	}

	alignment := BuildGoalAlignment(goals, pots)
	dashboard := &Dashboard{
		OwnerUID:      userID,
		Aggregation:   Aggregate(transactions, from, to),
		GoalProgress:  BuildGoalProgress(goals, pots),
		ThemeProgress: alignment.Themes,
		Currency:      currency,
		GeneratedAt:   now.UTC(),
	}
	if !from.IsZero() {
		dashboard.From = from.UTC().Format("2006-01-02")
	}
	if !to.IsZero() {
		dashboard.To = to.UTC().Format("2006-01-02")
	}

	e.logger.Debug("dashboard built",
		log.FieldUserID, userID,
		log.FieldCount, len(transactions))
	return dashboard, nil
}
