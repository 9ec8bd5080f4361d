package analytics

import (
	"math"
	"sort"
	"time"

	"finsight/internal/core"
)

// Cadence labels, ordered from tightest to loosest interval.
const (
	CadenceWeekly     = "weekly"
	CadenceFortnight  = "fortnightly"
	CadenceMonthly    = "monthly"
	CadenceBiMonthly  = "bi-monthly"
	CadenceQuarterly  = "quarterly"
	CadenceSemiAnnual = "semi-annual"
	CadenceAnnual     = "annual"
)

// MerchantProfile is the per-merchant recurring analysis derived from
// one run's spend transactions.
type MerchantProfile struct {
	MerchantKey         string            `json:"merchantKey"`
	MerchantName        string            `json:"merchantName"`
	TotalSpend          float64           `json:"totalSpend"`
	Transactions        int               `json:"transactions"`
	PrimaryCategoryType core.CategoryType `json:"primaryCategoryType"`
	LastTransactionAt   time.Time         `json:"lastTransactionAt"`
	Months              int               `json:"months"`
	IsRecurring         bool              `json:"isRecurring"`
	AvgAmount           float64           `json:"avgAmount"`
	MonthlyAmount       float64           `json:"monthlyAmount"`
	Cadence             string            `json:"cadence,omitempty"`
	Variability         float64           `json:"variability"`
}

// merchantAccumulator gathers one merchant's spend observations during
// the summary fold.
type merchantAccumulator struct {
	merchantKey   string
	merchantName  string
	totalSpend    float64
	transactions  int
	byBucket      map[core.CategoryType]float64
	byCategoryKey map[string]float64
	lastSeen      time.Time
	months        map[string]struct{}
	amounts       []float64
	timestamps    []time.Time
}

func newMerchantAccumulator(key, name string) *merchantAccumulator {
	return &merchantAccumulator{
		merchantKey:   key,
		merchantName:  name,
		byBucket:      make(map[core.CategoryType]float64),
		byCategoryKey: make(map[string]float64),
		months:        make(map[string]struct{}),
	}
}

func (m *merchantAccumulator) observe(absAmount float64, bucket core.CategoryType, categoryKey string, at time.Time) {
	m.totalSpend += absAmount
	m.transactions++
	m.byBucket[bucket] += absAmount
	m.byCategoryKey[categoryKey] += absAmount
	if at.After(m.lastSeen) {
		m.lastSeen = at
	}
	if month := core.MonthKey(at); month != "" {
		m.months[month] = struct{}{}
	}
	m.amounts = append(m.amounts, absAmount)
	if !at.IsZero() {
		m.timestamps = append(m.timestamps, at)
	}
}

// profile resolves the accumulator into a merchant profile using the
// cadence and variance rules.
func (m *merchantAccumulator) profile(cfg Config) MerchantProfile {
	mean := 0.0
	if len(m.amounts) > 0 {
		for _, a := range m.amounts {
			mean += a
		}
		mean /= float64(len(m.amounts))
	}

	variance := 0.0
	if len(m.amounts) > 0 {
		for _, a := range m.amounts {
			variance += (a - mean) * (a - mean)
		}
		variance /= float64(len(m.amounts))
	}
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}

	cadence := ""
	if len(m.timestamps) >= 2 {
		sorted := append([]time.Time(nil), m.timestamps...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		var deltas []float64
		for i := 1; i < len(sorted); i++ {
			days := sorted[i].Sub(sorted[i-1]).Hours() / 24
			if days > 0 {
				deltas = append(deltas, days)
			}
		}
		cadence = inferCadence(median(deltas))
	}

	monthCount := len(m.months)
	monthlyEquivalent := mean
	if cadence != "" {
		monthlyEquivalent = mean * cadenceMonthlyMultiplier(cadence)
	} else if monthCount > 0 {
		monthlyEquivalent = m.totalSpend / float64(monthCount)
	}

	hasCadenceEvidence := cadence != "" && len(m.timestamps) >= 2
	isRecurring := (monthCount >= cfg.SubscriptionMinMonths || hasCadenceEvidence) &&
		cv <= cfg.VarianceThreshold

	primary := core.CategoryOptional
	best := -1.0
	for bucket, amount := range m.byBucket {
		if amount > best || (amount == best && bucket < primary) {
			primary = bucket
			best = amount
		}
	}

	return MerchantProfile{
		MerchantKey:         m.merchantKey,
		MerchantName:        merchantDisplayName(m.merchantName),
		TotalSpend:          m.totalSpend,
		Transactions:        m.transactions,
		PrimaryCategoryType: primary,
		LastTransactionAt:   m.lastSeen,
		Months:              monthCount,
		IsRecurring:         isRecurring,
		AvgAmount:           mean,
		MonthlyAmount:       round2(monthlyEquivalent),
		Cadence:             cadence,
		Variability:         cv,
	}
}

func merchantDisplayName(name string) string {
	if name == "" {
		return "Merchant"
	}
	return name
}

// inferCadence maps a median day gap to a recurrence label. Gaps over
// 400 days carry no cadence signal.
func inferCadence(medianDays float64) string {
	if medianDays <= 0 || math.IsNaN(medianDays) {
		return ""
	}
	switch {
	case medianDays <= 10:
		return CadenceWeekly
	case medianDays <= 18:
		return CadenceFortnight
	case medianDays <= 45:
		return CadenceMonthly
	case medianDays <= 75:
		return CadenceBiMonthly
	case medianDays <= 110:
		return CadenceQuarterly
	case medianDays <= 200:
		return CadenceSemiAnnual
	case medianDays <= 400:
		return CadenceAnnual
	default:
		return ""
	}
}

func cadenceMonthlyMultiplier(cadence string) float64 {
	switch cadence {
	case CadenceWeekly:
		return 4.33
	case CadenceFortnight:
		return 2.17
	case CadenceMonthly:
		return 1
	case CadenceBiMonthly:
		return 0.5
	case CadenceQuarterly:
		return 1.0 / 3
	case CadenceSemiAnnual:
		return 1.0 / 6
	case CadenceAnnual:
		return 1.0 / 12
	default:
		return 1
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
