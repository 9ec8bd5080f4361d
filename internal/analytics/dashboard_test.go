package analytics

import (
	"context"
	"testing"
	"time"

	"finsight/internal/core"
)

func TestEngineDashboard(t *testing.T) {
	store := newFakeEngineStore()
	store.transactions = []core.Transaction{
		classifiedTx("t1", "Tesco", -100, core.CategoryMandatory, "groceries", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
		classifiedTx("t2", "Netflix", -15, core.CategoryOptional, "subscriptions", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
		classifiedTx("t3", "Pot transfer", -200, core.CategoryBankTransfer, "pot_transfer", time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)),
	}
	store.goals = []core.Goal{{ID: "g1", Title: "New Car", EstimatedCost: 1000, LinkedPotID: "p1"}}
	store.pots = []core.Pot{{ID: "p1", Name: "Car Fund", BalanceMinor: 50000}}

	engine := NewEngine(store, nil, DefaultConfig(), engineLogger()).
		WithClock(func() time.Time { return summaryNow })

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	dashboard, err := engine.Dashboard(context.Background(), "u1", from, to)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	if dashboard.OwnerUID != "u1" {
		t.Errorf("OwnerUID = %q, want u1", dashboard.OwnerUID)
	}
	if dashboard.From != "2024-03-01" || dashboard.To != "2024-03-31" {
		t.Errorf("window = %q..%q, want 2024-03-01..2024-03-31", dashboard.From, dashboard.To)
	}
	if dashboard.Currency != "GBP" {
		t.Errorf("Currency = %q, want GBP default", dashboard.Currency)
	}
	// Only the March grocery spend counts: February is outside the
	// window and the pot transfer is excluded from totals.
	if dashboard.Aggregation.TotalSpend != -100 {
		t.Errorf("TotalSpend = %v, want -100", dashboard.Aggregation.TotalSpend)
	}
	if got := dashboard.Aggregation.SpendByCategory["groceries"]; got != -100 {
		t.Errorf("SpendByCategory[groceries] = %v, want -100", got)
	}
	if _, ok := dashboard.Aggregation.SpendByCategory["subscriptions"]; ok {
		t.Error("February spend leaked into the window")
	}
	if len(dashboard.GoalProgress) != 1 || dashboard.GoalProgress[0].CurrentAmount != 50000 {
		t.Errorf("GoalProgress = %+v", dashboard.GoalProgress)
	}
	if !dashboard.GeneratedAt.Equal(summaryNow) {
		t.Errorf("GeneratedAt = %v, want %v", dashboard.GeneratedAt, summaryNow)
	}
}

func TestEngineDashboardOpenWindow(t *testing.T) {
	store := newFakeEngineStore()
	store.transactions = []core.Transaction{
		classifiedTx("t1", "Tesco", -40, core.CategoryMandatory, "groceries", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
	}

	engine := NewEngine(store, nil, DefaultConfig(), engineLogger()).
		WithClock(func() time.Time { return summaryNow })

	dashboard, err := engine.Dashboard(context.Background(), "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if dashboard.From != "" || dashboard.To != "" {
		t.Errorf("window = %q..%q, want both empty", dashboard.From, dashboard.To)
	}
	if dashboard.Aggregation.TotalSpend != -40 {
		t.Errorf("TotalSpend = %v, want -40", dashboard.Aggregation.TotalSpend)
	}
}

func TestEngineDashboardRequiresUser(t *testing.T) {
	engine := NewEngine(newFakeEngineStore(), nil, DefaultConfig(), engineLogger())
	if _, err := engine.Dashboard(context.Background(), "", time.Time{}, time.Time{}); err == nil {
		t.Fatal("expected an error for an empty user id")
	}
}
