package analytics

import (
	"sort"
	"time"

	"finsight/internal/core"
)

// MonthPoint is one month's signed amount in a per-goal series.
type MonthPoint struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// Aggregation is the dashboard fold over a filtered transaction set.
// All sums are signed major-unit amounts; the fold is commutative, so
// repeated runs over the same input produce identical output.
type Aggregation struct {
	TotalSpend       float64                       `json:"totalSpend"`
	SpendByBucket    map[core.CategoryType]float64 `json:"spendByBucket"`
	SpendByCategory  map[string]float64            `json:"spendByCategory"`
	SpendByTheme     map[string]float64            `json:"spendByTheme"`
	SpendByGoal      map[string]float64            `json:"spendByGoal"`
	TimeSeriesByGoal map[string][]MonthPoint       `json:"timeSeriesByGoal"`
	DailySpend       map[string]float64            `json:"dailySpend"`
}

// Aggregate folds transactions into dashboard totals. The optional
// from/to bounds are inclusive; zero values disable the filter.
// Transfers between the user's own accounts and unclassifiable records
// never contribute to any total.
func Aggregate(transactions []core.Transaction, from, to time.Time) Aggregation {
	result := Aggregation{
		SpendByBucket:    make(map[core.CategoryType]float64),
		SpendByCategory:  make(map[string]float64),
		SpendByTheme:     make(map[string]float64),
		SpendByGoal:      make(map[string]float64),
		TimeSeriesByGoal: make(map[string][]MonthPoint),
		DailySpend:       make(map[string]float64),
	}

	goalMonths := make(map[string]map[string]float64)

	for _, tx := range transactions {
		if !from.IsZero() && tx.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && tx.CreatedAt.After(to) {
			continue
		}

		bucket := tx.ResolvedCategoryType()
		if bucket == core.CategoryBankTransfer || bucket == core.CategoryUnknown {
			continue
		}

		if bucket == core.CategoryIncome {
			result.SpendByBucket[bucket] += tx.Amount
		} else if tx.Amount < 0 {
			result.TotalSpend += tx.Amount
			result.SpendByBucket[bucket] += tx.Amount

			day := tx.CreatedAt.UTC().Format("2006-01-02")
			result.DailySpend[day] += -tx.Amount
		}

		categoryKey := core.NormalizeCategoryKey(tx.ResolvedCategoryLabel())
		result.SpendByCategory[categoryKey] += tx.Amount
		result.SpendByTheme[core.ThemeForCategory(categoryKey)] += tx.Amount

		if tx.LinkedGoalID != "" {
			result.SpendByGoal[tx.LinkedGoalID] += tx.Amount
			months := goalMonths[tx.LinkedGoalID]
			if months == nil {
				months = make(map[string]float64)
				goalMonths[tx.LinkedGoalID] = months
			}
			months[core.MonthKey(tx.CreatedAt)] += tx.Amount
		}
	}

	for goalID, months := range goalMonths {
		series := make([]MonthPoint, 0, len(months))
		for month, amount := range months {
			series = append(series, MonthPoint{Month: month, Amount: amount})
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Month < series[j].Month })
		result.TimeSeriesByGoal[goalID] = series
	}

	return result
}
