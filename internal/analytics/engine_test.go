package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
)

type fakeEngineStore struct {
	transactions []core.Transaction
	goals        []core.Goal
	pots         []core.Pot
	budget       []core.BudgetEntry
	currency     string

	loadErr  error
	saveErr  error
	saved    map[string]*Snapshot
	saveRuns int
}

func newFakeEngineStore() *fakeEngineStore {
	return &fakeEngineStore{saved: make(map[string]*Snapshot)}
}

func (f *fakeEngineStore) TransactionsSince(ctx context.Context, userID string, since time.Time) ([]core.Transaction, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.transactions, nil
}

func (f *fakeEngineStore) IncomeOverrides(ctx context.Context, userID string) (map[string]bool, error) {
	return nil, nil
}

func (f *fakeEngineStore) SubscriptionOverrides(ctx context.Context, userID string) (map[string]core.SubscriptionOverride, error) {
	return nil, nil
}

func (f *fakeEngineStore) BudgetConfig(ctx context.Context, userID string) ([]core.BudgetEntry, string, error) {
	return f.budget, f.currency, nil
}

func (f *fakeEngineStore) Goals(ctx context.Context, userID string) ([]core.Goal, error) {
	return f.goals, nil
}

func (f *fakeEngineStore) Pots(ctx context.Context, userID string) ([]core.Pot, error) {
	return f.pots, nil
}

func (f *fakeEngineStore) SaveSummary(ctx context.Context, userID string, snapshot *Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[userID] = snapshot
	f.saveRuns++
	return nil
}

type fakeExporter struct {
	err   error
	calls int
}

func (f *fakeExporter) ExportSnapshot(ctx context.Context, userID string, snapshot *Snapshot) error {
	f.calls++
	return f.err
}

func engineLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func TestEngineRecompute(t *testing.T) {
	store := newFakeEngineStore()
	store.transactions = []core.Transaction{
		classifiedTx("t1", "Tesco", -100, core.CategoryMandatory, "groceries", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
		merchantTx("t2", "Acme Payroll", 2000, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC)),
	}
	store.goals = []core.Goal{{ID: "g1", Title: "New Car", EstimatedCost: 1000, LinkedPotID: "p1"}}
	store.pots = []core.Pot{{ID: "p1", Name: "Car Fund", BalanceMinor: 50000}}

	engine := NewEngine(store, nil, DefaultConfig(), engineLogger()).
		WithClock(func() time.Time { return summaryNow })

	snapshot, err := engine.Recompute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}

	if snapshot.OwnerUID != "u1" {
		t.Errorf("OwnerUID = %q, want u1", snapshot.OwnerUID)
	}
	if snapshot.RunID == "" {
		t.Error("RunID is empty")
	}
	if snapshot.Currency != "GBP" {
		t.Errorf("Currency = %q, want GBP default", snapshot.Currency)
	}
	if snapshot.Totals.Mandatory != 100 || snapshot.Totals.Income != 2000 {
		t.Errorf("Totals = %+v", snapshot.Totals)
	}
	if snapshot.NetCashflow != 1900 {
		t.Errorf("NetCashflow = %v, want 1900", snapshot.NetCashflow)
	}
	if len(snapshot.GoalProgress) != 1 || snapshot.GoalProgress[0].CurrentAmount != 50000 {
		t.Errorf("GoalProgress = %+v", snapshot.GoalProgress)
	}
	if store.saved["u1"] != snapshot {
		t.Error("snapshot not persisted under the user id")
	}
}

func TestEngineRecomputeFullReplace(t *testing.T) {
	store := newFakeEngineStore()
	store.transactions = []core.Transaction{
		classifiedTx("t1", "Tesco", -100, core.CategoryMandatory, "groceries", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
	}

	engine := NewEngine(store, nil, DefaultConfig(), engineLogger()).
		WithClock(func() time.Time { return summaryNow })

	first, err := engine.Recompute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first Recompute() error = %v", err)
	}

	store.transactions = nil
	second, err := engine.Recompute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second Recompute() error = %v", err)
	}

	if store.saved["u1"] != second {
		t.Error("latest snapshot must fully replace the previous one")
	}
	if first.RunID == second.RunID {
		t.Error("runs must carry distinct run ids")
	}
	if second.Totals.Mandatory != 0 {
		t.Errorf("second Totals.Mandatory = %v, want 0 (no carry-over)", second.Totals.Mandatory)
	}
}

func TestEngineLoadFailurePreservesSnapshot(t *testing.T) {
	store := newFakeEngineStore()
	store.loadErr = errors.New("db offline")

	engine := NewEngine(store, nil, DefaultConfig(), engineLogger())

	if _, err := engine.Recompute(context.Background(), "u1"); err == nil {
		t.Fatal("Recompute() error = nil, want load failure")
	}
	if store.saveRuns != 0 {
		t.Errorf("saveRuns = %d, want 0 (no partial writes)", store.saveRuns)
	}
}

func TestEngineSaveFailurePropagates(t *testing.T) {
	store := newFakeEngineStore()
	store.saveErr = errors.New("write denied")

	engine := NewEngine(store, nil, DefaultConfig(), engineLogger())

	if _, err := engine.Recompute(context.Background(), "u1"); err == nil {
		t.Fatal("Recompute() error = nil, want save failure")
	}
}

func TestEngineExportFailureIsNotFatal(t *testing.T) {
	store := newFakeEngineStore()
	exporter := &fakeExporter{err: errors.New("sheets unavailable")}

	engine := NewEngine(store, exporter, DefaultConfig(), engineLogger())

	if _, err := engine.Recompute(context.Background(), "u1"); err != nil {
		t.Fatalf("Recompute() error = %v, want nil despite export failure", err)
	}
	if exporter.calls != 1 {
		t.Errorf("exporter calls = %d, want 1", exporter.calls)
	}
}

func TestEngineRequiresUserID(t *testing.T) {
	engine := NewEngine(newFakeEngineStore(), nil, DefaultConfig(), engineLogger())
	if _, err := engine.Recompute(context.Background(), ""); err == nil {
		t.Fatal("Recompute(\"\") error = nil, want error")
	}
}
