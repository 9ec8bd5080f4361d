package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"finsight/internal/core"
	"finsight/internal/log"
)

// Store is the persistence surface a recomputation run reads from and
// writes to. SaveSummary must be a full replace keyed by user id so
// interleaved runs always leave a self-consistent snapshot behind.
type Store interface {
	TransactionsSince(ctx context.Context, userID string, since time.Time) ([]core.Transaction, error)
	IncomeOverrides(ctx context.Context, userID string) (map[string]bool, error)
	SubscriptionOverrides(ctx context.Context, userID string) (map[string]core.SubscriptionOverride, error)
	BudgetConfig(ctx context.Context, userID string) ([]core.BudgetEntry, string, error)
	Goals(ctx context.Context, userID string) ([]core.Goal, error)
	Pots(ctx context.Context, userID string) ([]core.Pot, error)
	SaveSummary(ctx context.Context, userID string, snapshot *Snapshot) error
}

// Exporter receives the finished snapshot for out-of-band delivery,
// such as a spreadsheet export. Export failures do not fail the run.
type Exporter interface {
	ExportSnapshot(ctx context.Context, userID string, snapshot *Snapshot) error
}

// Snapshot is the engine's sole persisted output: one document per
// user, fully replaced on every run.
type Snapshot struct {
	OwnerUID string `json:"ownerUid"`
	RunID    string `json:"runId"`

	Totals                   Totals                       `json:"totals"`
	Categories               []CategoryBreakdown          `json:"categories"`
	Monthly                  map[string]Totals            `json:"monthly"`
	SpendTimeline            []TimelinePoint              `json:"spendTimeline"`
	MerchantSummary          []MerchantProfile            `json:"merchantSummary"`
	RecurringMerchants       []MerchantProfile            `json:"recurringMerchants"`
	PendingClassification    []PendingTransaction         `json:"pendingClassification"`
	PendingCount             int                          `json:"pendingCount"`
	IncomeSources            []IncomeSource               `json:"incomeSources"`
	SubscriptionInsights     []SubscriptionInsight        `json:"subscriptionInsights"`
	SubscriptionPendingCount int                          `json:"subscriptionPendingCount"`
	BudgetRecommendations    []BudgetRecommendation       `json:"budgetRecommendations"`
	BudgetProgress           []BudgetProgressEntry        `json:"budgetProgress"`
	MonthlyBudgetStatus      []BudgetStatus               `json:"monthlyBudgetStatus"`
	BurnRateAlerts           []BurnRateAlert              `json:"burnRateAlerts"`
	RecurringCategorySummary map[string]RecurringCategory `json:"recurringCategorySummary"`
	CurrentMonth             CurrentMonth                 `json:"currentMonth"`
	NetCashflow              float64                      `json:"netCashflow"`
	GoalAlignment            GoalAlignment                `json:"goalAlignment"`
	ThemeProgress            []ThemeProgress              `json:"themeProgress"`
	GoalProgress             []GoalProgressEntry          `json:"goalProgress"`
	Currency                 string                       `json:"currency"`
	UpdatedAt                time.Time                    `json:"updatedAt"`
}

// Engine composes the full recomputation pipeline for one user.
type Engine struct {
	store    Store
	exporter Exporter
	cfg      Config
	logger   *log.Logger
	now      func() time.Time
}

func NewEngine(store Store, exporter Exporter, cfg Config, logger *log.Logger) *Engine {
	return &Engine{
		store:    store,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentAnalytics),
		now:      time.Now,
	}
}

// WithClock fixes the engine's notion of now. Tests use it to pin the
// current-month and history-window calculations.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type runInputs struct {
	transactions  []core.Transaction
	incomeOvr     map[string]bool
	subOvr        map[string]core.SubscriptionOverride
	budgetEntries []core.BudgetEntry
	currency      string
	goals         []core.Goal
	pots          []core.Pot
}

// Recompute reads the user's full history window, computes the summary
// snapshot in memory and writes it as a single replace. It performs no
// writes before the final persistence step, so a failed run leaves the
// previous snapshot intact.
func (e *Engine) Recompute(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("analytics: recompute requires a user id")
	}

	started := e.now()
	runID := uuid.NewString()
	inputs, err := e.loadInputs(ctx, userID, started)
	if err != nil {
		return nil, err
	}

	snapshot := e.compose(userID, runID, inputs, started)

	if err := e.store.SaveSummary(ctx, userID, snapshot); err != nil {
		return nil, fmt.Errorf("analytics: save summary for %s: %w", userID, err)
	}

	if e.exporter != nil {
		if err := e.exporter.ExportSnapshot(ctx, userID, snapshot); err != nil {
			e.logger.Warn("snapshot export failed",
				log.FieldUserID, userID,
				log.FieldRunID, runID,
				log.FieldError, err)
		}
	}

	e.logger.Info("recomputation complete",
		log.FieldUserID, userID,
		log.FieldRunID, runID,
		log.FieldCount, len(inputs.transactions),
		log.FieldDuration, e.now().Sub(started).Milliseconds())
	return snapshot, nil
}

func (e *Engine) loadInputs(ctx context.Context, userID string, now time.Time) (*runInputs, error) {
	inputs := &runInputs{}
	since := now.UTC().AddDate(0, -e.cfg.HistoryMonths, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inputs.transactions, err = e.store.TransactionsSince(gctx, userID, since)
		return err
	})
	g.Go(func() error {
		var err error
		inputs.incomeOvr, err = e.store.IncomeOverrides(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		inputs.subOvr, err = e.store.SubscriptionOverrides(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		inputs.budgetEntries, inputs.currency, err = e.store.BudgetConfig(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		inputs.goals, err = e.store.Goals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		inputs.pots, err = e.store.Pots(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analytics: load inputs for %s: %w", userID, err)
	}

	if inputs.currency == "" {
		inputs.currency = "GBP"
	}
	return inputs, nil
}

func (e *Engine) compose(userID, runID string, inputs *runInputs, now time.Time) *Snapshot {
	summary := Summarise(inputs.transactions, Overrides{
		Income:       inputs.incomeOvr,
		Subscription: inputs.subOvr,
	}, e.cfg, now)

	report := BuildBudgetReport(summary, inputs.budgetEntries, e.cfg, now)
	alignment := BuildGoalAlignment(inputs.goals, inputs.pots)

	pendingSubs := 0
	for _, insight := range summary.SubscriptionInsights {
		if insight.Status != StatusOverridden {
			pendingSubs++
		}
	}

	return &Snapshot{
		OwnerUID:                 userID,
		RunID:                    runID,
		Totals:                   summary.Totals,
		Categories:               summary.Categories,
		Monthly:                  summary.Monthly,
		SpendTimeline:            summary.SpendTimeline,
		MerchantSummary:          summary.MerchantSummary,
		RecurringMerchants:       summary.RecurringMerchants(e.cfg.MaxMerchants),
		PendingClassification:    summary.PendingClassification,
		PendingCount:             summary.PendingCount,
		IncomeSources:            summary.IncomeSources,
		SubscriptionInsights:     summary.SubscriptionInsights,
		SubscriptionPendingCount: pendingSubs,
		BudgetRecommendations:    summary.BudgetRecommendations,
		BudgetProgress:           report.BudgetProgress,
		MonthlyBudgetStatus:      report.MonthlyBudgetStatus,
		BurnRateAlerts:           report.BurnRateAlerts,
		RecurringCategorySummary: summary.RecurringCategorySummary,
		CurrentMonth:             report.CurrentMonth,
		NetCashflow:              summary.NetCashflow,
		GoalAlignment:            alignment,
		ThemeProgress:            alignment.Themes,
		GoalProgress:             BuildGoalProgress(inputs.goals, inputs.pots),
		Currency:                 inputs.currency,
		UpdatedAt:                now.UTC(),
	}
}
