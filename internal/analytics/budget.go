package analytics

import (
	"sort"
	"strings"
	"time"

	"finsight/internal/core"
)

// Burn statuses, ordered by severity.
const (
	BurnOK       = "ok"
	BurnAhead    = "ahead"
	BurnWarning  = "warning"
	BurnCritical = "critical"
)

var burnSeverityRank = map[string]int{
	BurnCritical: 3,
	BurnWarning:  2,
	BurnAhead:    1,
	BurnOK:       0,
}

// MonthMeta describes how far through the current calendar month the
// run is, in UTC.
type MonthMeta struct {
	Key            string  `json:"key"`
	DayOfMonth     int     `json:"daysElapsed"`
	DaysInMonth    int     `json:"daysInMonth"`
	ElapsedPercent float64 `json:"elapsedPercent"`
}

// CurrentMonth is the snapshot's view of the in-progress month.
type CurrentMonth struct {
	MonthMeta
	Income float64 `json:"income"`
}

// BudgetStatus is one configured budget entry resolved against this
// month's actual spend.
type BudgetStatus struct {
	Key                   string              `json:"key"`
	CategoryKey           string              `json:"categoryKey"`
	Label                 string              `json:"label"`
	Type                  core.CategoryType   `json:"type"`
	BudgetMode            core.BudgetMode     `json:"budgetMode"`
	BudgetValue           float64             `json:"budgetValue"`
	BudgetMonthly         float64             `json:"budgetMonthly"`
	BudgetPercentOfIncome *float64            `json:"budgetPercentOfIncome"`
	ActualMonthly         float64             `json:"actualMonthly"`
	Variance              float64             `json:"variance"`
	Utilisation           *float64            `json:"utilisation"`
	ElapsedPercent        float64             `json:"elapsedPercent"`
	SpendPercent          *float64            `json:"spendPercent"`
	BurnRate              *float64            `json:"burnRate"`
	BurnStatus            string              `json:"burnStatus"`
	TotalLast12           *float64            `json:"totalLast12"`
	AveragePerMonth       *float64            `json:"averagePerMonth"`
	RecommendedMonthly    *float64            `json:"recommendedMonthly"`
	MonthsSampled         int                 `json:"monthsSampled"`
	RecurringMonthly      *float64            `json:"recurringMonthly"`
	RecurringMerchants    []RecurringMerchant `json:"recurringMerchants"`
}

// BurnRateAlert is a warning- or critical-status budget surfaced for
// the dashboard's attention strip.
type BurnRateAlert struct {
	Key            string   `json:"key"`
	Label          string   `json:"label"`
	Status         string   `json:"status"`
	SpendPercent   *float64 `json:"spendPercent"`
	ElapsedPercent float64  `json:"elapsedPercent"`
	Variance       float64  `json:"variance"`
	ActualMonthly  float64  `json:"actualMonthly"`
	BudgetMonthly  float64  `json:"budgetMonthly"`
}

// BudgetProgressEntry compares one budget against the all-time actual
// for its category or bucket.
type BudgetProgressEntry struct {
	Key         string   `json:"key"`
	Budget      float64  `json:"budget"`
	Actual      float64  `json:"actual"`
	Variance    float64  `json:"variance"`
	Utilisation *float64 `json:"utilisation"`
}

// BudgetReport is the burn-tracking output for one run.
type BudgetReport struct {
	MonthlyBudgetStatus []BudgetStatus        `json:"monthlyBudgetStatus"`
	BurnRateAlerts      []BurnRateAlert       `json:"burnRateAlerts"`
	BudgetProgress      []BudgetProgressEntry `json:"budgetProgress"`
	CurrentMonth        CurrentMonth          `json:"currentMonth"`
}

// monthMetaAt computes elapsed-month progress for the instant now, in
// UTC so every run agrees on month boundaries.
func monthMetaAt(now time.Time) MonthMeta {
	utc := now.UTC()
	daysInMonth := time.Date(utc.Year(), utc.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := utc.Day()
	return MonthMeta{
		Key:            core.MonthKey(utc),
		DayOfMonth:     day,
		DaysInMonth:    daysInMonth,
		ElapsedPercent: round2(float64(day) / float64(daysInMonth) * 100),
	}
}

// BuildBudgetReport resolves every configured budget entry against the
// summary's actuals. Categories without a budget entry are simply
// absent; that is configuration, not an error.
func BuildBudgetReport(summary Summary, entries []core.BudgetEntry, cfg Config, now time.Time) BudgetReport {
	meta := monthMetaAt(now)
	monthlyIncome := summary.Monthly[meta.Key].Income

	recommendations := make(map[string]BudgetRecommendation, len(summary.BudgetRecommendations))
	for _, rec := range summary.BudgetRecommendations {
		key := rec.CategoryKey
		if key == "" {
			key = core.NormalizeCategoryKey(rec.Label)
		}
		if _, exists := recommendations[key]; !exists {
			recommendations[key] = rec
		}
	}

	report := BudgetReport{
		CurrentMonth: CurrentMonth{MonthMeta: meta, Income: round2(monthlyIncome)},
	}
	progressBudgets := make(map[string]float64)
	progressLabels := make(map[string]string)

	for _, entry := range entries {
		key := core.NormalizeCategoryKey(entry.CategoryKey)
		if key == "" || key == "uncategorised" && entry.CategoryKey == "" {
			continue
		}

		budgetMonthly := entry.MonthlyTarget(monthlyIncome)
		if budgetMonthly > 0 {
			progressBudgets[key] = budgetMonthly
		}
		label := entry.Label
		if label == "" {
			label = entry.CategoryKey
		}
		progressLabels[key] = label

		rec, hasRec := recommendations[key]

		actual := monthActual(summary, rec, hasRec, key, meta.Key)

		status := BudgetStatus{
			Key:            key,
			CategoryKey:    key,
			Label:          label,
			Type:           budgetEntryType(rec, hasRec, key),
			BudgetMode:     entry.Mode,
			BudgetValue:    budgetValue(entry),
			BudgetMonthly:  round2(budgetMonthly),
			ActualMonthly:  round2(actual),
			Variance:       round2(budgetMonthly - actual),
			ElapsedPercent: meta.ElapsedPercent,
			BurnStatus:     BurnOK,
			MonthsSampled:  rec.MonthsSampled,
		}
		if hasRec && rec.Label != "" {
			status.Label = rec.Label
		}

		if monthlyIncome > 0 && budgetMonthly > 0 {
			status.BudgetPercentOfIncome = ptr(round2(budgetMonthly / monthlyIncome * 100))
		}
		if budgetMonthly > 0 {
			spendPercent := round2(actual / budgetMonthly * 100)
			status.SpendPercent = ptr(spendPercent)
			status.Utilisation = ptr(spendPercent)
			burnRate := round2(spendPercent - meta.ElapsedPercent)
			status.BurnRate = ptr(burnRate)
			status.BurnStatus = burnStatusFor(burnRate, cfg)
		}

		if hasRec {
			status.TotalLast12 = ptr(rec.TotalLast12)
			status.AveragePerMonth = ptr(rec.AveragePerMonth)
			status.RecommendedMonthly = ptr(rec.RecommendedMonthly)
		}
		if meta2, ok := summary.RecurringCategorySummary[key]; ok {
			status.RecurringMonthly = ptr(meta2.Amount)
			status.RecurringMerchants = meta2.Merchants
		}

		report.MonthlyBudgetStatus = append(report.MonthlyBudgetStatus, status)

		if status.BurnStatus == BurnWarning || status.BurnStatus == BurnCritical {
			report.BurnRateAlerts = append(report.BurnRateAlerts, BurnRateAlert{
				Key:            key,
				Label:          status.Label,
				Status:         status.BurnStatus,
				SpendPercent:   status.SpendPercent,
				ElapsedPercent: status.ElapsedPercent,
				Variance:       status.Variance,
				ActualMonthly:  status.ActualMonthly,
				BudgetMonthly:  status.BudgetMonthly,
			})
		}
	}

	sort.Slice(report.MonthlyBudgetStatus, func(i, j int) bool {
		return report.MonthlyBudgetStatus[i].Label < report.MonthlyBudgetStatus[j].Label
	})
	sort.SliceStable(report.BurnRateAlerts, func(i, j int) bool {
		return burnSeverityRank[report.BurnRateAlerts[i].Status] > burnSeverityRank[report.BurnRateAlerts[j].Status]
	})

	report.BudgetProgress = buildBudgetProgress(summary, progressBudgets, progressLabels)
	return report
}

func burnStatusFor(burnRate float64, cfg Config) string {
	switch {
	case burnRate >= cfg.BurnCriticalDelta:
		return BurnCritical
	case burnRate >= cfg.BurnWarningDelta:
		return BurnWarning
	case burnRate <= cfg.BurnAheadDelta:
		return BurnAhead
	default:
		return BurnOK
	}
}

// monthActual resolves this month's actual spend for a budget key: the
// category's month breakdown first, then the bucket-level monthly total
// when the key names a top-level bucket.
func monthActual(summary Summary, rec BudgetRecommendation, hasRec bool, key, monthKey string) float64 {
	if hasRec {
		for _, point := range rec.MonthBreakdown {
			if point.Month == monthKey && point.Amount != 0 {
				return point.Amount
			}
		}
	}
	if bucket := core.CategoryType(key); isSafeBucket(bucket) {
		t := summary.Monthly[monthKey]
		switch bucket {
		case core.CategoryMandatory:
			return t.Mandatory
		case core.CategoryOptional:
			return t.Optional
		case core.CategorySavings:
			return t.Savings
		case core.CategoryIncome:
			return t.Income
		}
	}
	return 0
}

func isSafeBucket(bucket core.CategoryType) bool {
	for _, safe := range core.SafeCategoryTypes {
		if bucket == safe {
			return true
		}
	}
	return false
}

func budgetEntryType(rec BudgetRecommendation, hasRec bool, key string) core.CategoryType {
	if hasRec && rec.Type != "" {
		return rec.Type
	}
	if bucket := core.CategoryType(key); isSafeBucket(bucket) {
		return bucket
	}
	return core.CategoryOptional
}

func budgetValue(entry core.BudgetEntry) float64 {
	if entry.Mode == core.BudgetPercent {
		return round2(entry.Percent)
	}
	return round2(entry.Amount)
}

// buildBudgetProgress compares budgets against all-time actuals: bucket
// keys read the bucket totals, anything else sums matching category
// labels.
func buildBudgetProgress(summary Summary, budgets map[string]float64, labels map[string]string) []BudgetProgressEntry {
	entries := make([]BudgetProgressEntry, 0, len(budgets))
	for key, budget := range budgets {
		var actual float64
		if bucket := core.CategoryType(key); isSafeBucket(bucket) {
			switch bucket {
			case core.CategoryMandatory:
				actual = summary.Totals.Mandatory
			case core.CategoryOptional:
				actual = summary.Totals.Optional
			case core.CategorySavings:
				actual = summary.Totals.Savings
			case core.CategoryIncome:
				actual = summary.Totals.Income
			}
		} else {
			for _, cat := range summary.Categories {
				if core.NormalizeCategoryKey(cat.Label) == key || strings.EqualFold(cat.Label, key) {
					actual += cat.Amount
				}
			}
		}

		entry := BudgetProgressEntry{
			Key:      progressLabel(labels, key),
			Budget:   budget,
			Actual:   actual,
			Variance: budget - actual,
		}
		if budget > 0 {
			utilisation := actual / budget * 100
			if utilisation > 999 {
				utilisation = 999
			}
			entry.Utilisation = ptr(round2(utilisation))
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func progressLabel(labels map[string]string, key string) string {
	if label, ok := labels[key]; ok && label != "" {
		return label
	}
	return key
}

func ptr(f float64) *float64 { return &f }
