package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeStore struct {
	pending []core.Transaction
	applied map[string]Result
	reject  map[string]bool
}

func newFakeStore(pending ...core.Transaction) *fakeStore {
	return &fakeStore{
		pending: pending,
		applied: make(map[string]Result),
		reject:  make(map[string]bool),
	}
}

func (f *fakeStore) PendingClassification(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) ApplyClassification(ctx context.Context, txID string, result Result) (bool, error) {
	if f.reject[txID] {
		return false, nil
	}
	f.applied[txID] = result
	return true, nil
}

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func tx(id, merchant string, amount float64) core.Transaction {
	return core.Transaction{
		ID:           id,
		UserID:       "u1",
		Amount:       amount,
		Currency:     "GBP",
		MerchantName: merchant,
		MerchantKey:  core.NormalizeMerchantKey(merchant),
		CreatedAt:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestClassifyAppliesModelResult(t *testing.T) {
	completer := &fakeCompleter{response: `{"categoryType":"optional","categoryLabel":"Eating Out","confidence":0.92}`}
	store := newFakeStore()
	c := NewClassifier(completer, store, 10, time.Minute, testLogger())
	defer c.Close()

	result, applied, err := c.Classify(context.Background(), tx("tx1", "Nando's", -15.50))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !applied {
		t.Fatal("applied = false, want true")
	}
	if result.CategoryType != core.CategoryOptional {
		t.Errorf("CategoryType = %q, want optional", result.CategoryType)
	}
	if result.Label != "eating_out" {
		t.Errorf("Label = %q, want eating_out", result.Label)
	}
	if got := store.applied["tx1"]; got != result {
		t.Errorf("stored result = %+v, want %+v", got, result)
	}
}

func TestClassifySkipsAlreadyClassified(t *testing.T) {
	completer := &fakeCompleter{response: `{"categoryType":"optional","categoryLabel":"x","confidence":0.5}`}
	store := newFakeStore()
	c := NewClassifier(completer, store, 10, time.Minute, testLogger())
	defer c.Close()

	classified := tx("tx1", "Netflix", -8.99)
	classified.UserCategoryType = core.CategoryOptional

	_, applied, err := c.Classify(context.Background(), classified)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if applied {
		t.Error("applied = true, want false for already-classified transaction")
	}
	if completer.calls != 0 {
		t.Errorf("completer called %d times, want 0", completer.calls)
	}
}

func TestClassifyCachesByMerchant(t *testing.T) {
	completer := &fakeCompleter{response: `{"categoryType":"mandatory","categoryLabel":"groceries","confidence":0.9}`}
	store := newFakeStore()
	c := NewClassifier(completer, store, 10, time.Minute, testLogger())
	defer c.Close()

	ctx := context.Background()
	for _, id := range []string{"tx1", "tx2", "tx3"} {
		if _, _, err := c.Classify(ctx, tx(id, "Tesco Stores", -20)); err != nil {
			t.Fatalf("Classify(%s) error = %v", id, err)
		}
	}

	if completer.calls != 1 {
		t.Errorf("completer called %d times, want 1 (cache hit for repeat merchant)", completer.calls)
	}
	if len(store.applied) != 3 {
		t.Errorf("applied %d results, want 3", len(store.applied))
	}
}

func TestClassifyGuardedWrite(t *testing.T) {
	completer := &fakeCompleter{response: `{"categoryType":"optional","categoryLabel":"shopping","confidence":0.8}`}
	store := newFakeStore()
	store.reject["tx1"] = true
	c := NewClassifier(completer, store, 10, time.Minute, testLogger())
	defer c.Close()

	_, applied, err := c.Classify(context.Background(), tx("tx1", "Amazon", -25))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if applied {
		t.Error("applied = true, want false when the store rejects the write")
	}
}

func TestProcessPendingContinuesPastFailures(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model unavailable")}
	store := newFakeStore(
		tx("tx1", "Shop A", -10),
		tx("tx2", "Shop B", -20),
	)
	c := NewClassifier(completer, store, 10, time.Minute, testLogger())
	defer c.Close()

	applied, err := c.ProcessPending(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0", applied)
	}
	if completer.calls != 2 {
		t.Errorf("completer called %d times, want 2 (one per transaction)", completer.calls)
	}
}

func TestProcessPendingAppliesBatch(t *testing.T) {
	completer := &fakeCompleter{response: `{"categoryType":"optional","categoryLabel":"subscriptions","confidence":0.85}`}
	store := newFakeStore(
		tx("tx1", "Netflix", -8.99),
		tx("tx2", "Spotify", -9.99),
	)
	c := NewClassifier(completer, store, 10, time.Minute, testLogger())
	defer c.Close()

	applied, err := c.ProcessPending(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}
}
