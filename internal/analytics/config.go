// Package analytics computes spend aggregates, recurring-merchant
// intelligence, budget status and goal funding alignment from a user's
// normalised transaction history.
package analytics

import "math"

// Config carries the tuning parameters for a recomputation run. The
// trim and boost factors are product heuristics, not derived values,
// so they stay adjustable rather than baked in.
type Config struct {
	// IncomeThreshold is the minimum absolute amount (major units) for
	// a positive transaction to count as income without an override.
	IncomeThreshold float64

	// SubscriptionMinMonths is the number of distinct months a merchant
	// must touch before month evidence alone marks it recurring.
	SubscriptionMinMonths int

	// VarianceThreshold is the maximum coefficient of variation
	// (stddev/mean) a recurring merchant's amounts may show.
	VarianceThreshold float64

	// StrongMonthlyThreshold is the monthly-equivalent spend (major
	// units) above which a discretionary subscription is recommended
	// for cancellation rather than reduction.
	StrongMonthlyThreshold float64

	// DiscretionaryTrimFactor scales the non-recurring portion of
	// discretionary spend when recommending a monthly budget.
	DiscretionaryTrimFactor float64

	// SavingsBoostFactor scales the historical average when
	// recommending a savings-category budget.
	SavingsBoostFactor float64

	// HistoryMonths is the trailing window for budget recommendations.
	HistoryMonths int

	// Burn-rate status thresholds, in percentage points of
	// spend-percent minus elapsed-percent.
	BurnCriticalDelta float64
	BurnWarningDelta  float64
	BurnAheadDelta    float64

	// Output caps, matching what the dashboard renders.
	MaxCategories int
	MaxMerchants  int
	MaxPending    int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		IncomeThreshold:         150,
		SubscriptionMinMonths:   2,
		VarianceThreshold:       0.25,
		StrongMonthlyThreshold:  40,
		DiscretionaryTrimFactor: 0.9,
		SavingsBoostFactor:      1.1,
		HistoryMonths:           12,
		BurnCriticalDelta:       10,
		BurnWarningDelta:        5,
		BurnAheadDelta:          -10,
		MaxCategories:           50,
		MaxMerchants:            50,
		MaxPending:              25,
	}
}

// round2 normalises a value to two decimal places, the precision every
// persisted monetary figure uses.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
