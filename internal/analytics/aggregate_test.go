package analytics

import (
	"reflect"
	"testing"
	"time"

	"finsight/internal/core"
)

func spendTx(id string, amount float64, createdAt time.Time) core.Transaction {
	return core.Transaction{
		ID:        id,
		UserID:    "u1",
		Amount:    amount,
		Currency:  "GBP",
		CreatedAt: createdAt,
		MonthKey:  core.MonthKey(createdAt),
	}
}

func labelledTx(id string, amount float64, label string, createdAt time.Time) core.Transaction {
	tx := spendTx(id, amount, createdAt)
	tx.AICategoryType = core.CategoryOptional
	tx.AICategoryLabel = label
	return tx
}

func TestAggregateGoalScenario(t *testing.T) {
	txs := []core.Transaction{
		func() core.Transaction {
			tx := spendTx("t1", -1000, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC))
			tx.LinkedGoalID = "g1"
			return tx
		}(),
		func() core.Transaction {
			tx := spendTx("t2", -2000, time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC))
			tx.LinkedGoalID = "g1"
			return tx
		}(),
		func() core.Transaction {
			tx := spendTx("t3", -500, time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC))
			tx.LinkedGoalID = "g2"
			return tx
		}(),
	}

	agg := Aggregate(txs, time.Time{}, time.Time{})

	if agg.SpendByGoal["g1"] != -3000 {
		t.Errorf("SpendByGoal[g1] = %v, want -3000", agg.SpendByGoal["g1"])
	}
	if agg.SpendByGoal["g2"] != -500 {
		t.Errorf("SpendByGoal[g2] = %v, want -500", agg.SpendByGoal["g2"])
	}
	wantSeries := []MonthPoint{
		{Month: "2023-01", Amount: -1000},
		{Month: "2023-02", Amount: -2000},
	}
	if !reflect.DeepEqual(agg.TimeSeriesByGoal["g1"], wantSeries) {
		t.Errorf("TimeSeriesByGoal[g1] = %+v, want %+v", agg.TimeSeriesByGoal["g1"], wantSeries)
	}
}

func TestAggregateThemeScenario(t *testing.T) {
	txs := []core.Transaction{
		labelledTx("t1", -1000, "groceries", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)),
		labelledTx("t2", -500, "rent", time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)),
	}

	agg := Aggregate(txs, time.Time{}, time.Time{})

	if agg.SpendByTheme["Living"] != -1000 {
		t.Errorf("SpendByTheme[Living] = %v, want -1000", agg.SpendByTheme["Living"])
	}
	if agg.SpendByTheme["Housing"] != -500 {
		t.Errorf("SpendByTheme[Housing] = %v, want -500", agg.SpendByTheme["Housing"])
	}
}

func TestAggregateIdempotence(t *testing.T) {
	txs := []core.Transaction{
		labelledTx("t1", -120, "groceries", time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)),
		labelledTx("t2", -30, "entertainment", time.Date(2023, 4, 5, 0, 0, 0, 0, time.UTC)),
		spendTx("t3", 2000, time.Date(2023, 4, 25, 0, 0, 0, 0, time.UTC)),
	}

	first := Aggregate(txs, time.Time{}, time.Time{})
	second := Aggregate(txs, time.Time{}, time.Time{})
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated aggregation over identical input differs")
	}
}

func TestAggregateBucketTotalConsistency(t *testing.T) {
	mandatory := spendTx("t1", -800, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))
	mandatory.UserCategoryType = core.CategoryMandatory
	savings := spendTx("t2", -200, time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC))
	savings.UserCategoryType = core.CategorySavings
	optional := spendTx("t3", -55, time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC))
	income := spendTx("t4", 2500, time.Date(2023, 5, 25, 0, 0, 0, 0, time.UTC))

	agg := Aggregate([]core.Transaction{mandatory, savings, optional, income}, time.Time{}, time.Time{})

	sum := agg.SpendByBucket[core.CategoryMandatory] +
		agg.SpendByBucket[core.CategoryOptional] +
		agg.SpendByBucket[core.CategorySavings]
	if agg.TotalSpend != sum {
		t.Errorf("TotalSpend = %v, bucket sum = %v", agg.TotalSpend, sum)
	}
	if agg.TotalSpend != -1055 {
		t.Errorf("TotalSpend = %v, want -1055", agg.TotalSpend)
	}
}

func TestAggregateExcludesTransfersAndUnknown(t *testing.T) {
	transfer := spendTx("t1", -500, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	transfer.UserCategoryType = core.CategoryBankTransfer
	transfer.LinkedGoalID = "g1"
	unknown := spendTx("t2", -100, time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC))
	unknown.UserCategoryType = core.CategoryUnknown

	agg := Aggregate([]core.Transaction{transfer, unknown}, time.Time{}, time.Time{})

	if agg.TotalSpend != 0 {
		t.Errorf("TotalSpend = %v, want 0", agg.TotalSpend)
	}
	if len(agg.SpendByBucket) != 0 || len(agg.SpendByCategory) != 0 || len(agg.SpendByGoal) != 0 {
		t.Errorf("excluded categories leaked into aggregates: %+v", agg)
	}
}

func TestAggregateDateFilterInclusive(t *testing.T) {
	txs := []core.Transaction{
		spendTx("t1", -10, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)),
		spendTx("t2", -20, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)),
		spendTx("t3", -40, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)),
	}

	agg := Aggregate(txs,
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC))

	if agg.TotalSpend != -60 {
		t.Errorf("TotalSpend = %v, want -60 (bounds are inclusive)", agg.TotalSpend)
	}
}

func TestAggregateDailySpend(t *testing.T) {
	day := time.Date(2023, 7, 10, 9, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		spendTx("t1", -12.50, day),
		spendTx("t2", -7.50, day.Add(6*time.Hour)),
	}

	agg := Aggregate(txs, time.Time{}, time.Time{})

	if agg.DailySpend["2023-07-10"] != 20 {
		t.Errorf("DailySpend[2023-07-10] = %v, want 20", agg.DailySpend["2023-07-10"])
	}
}
