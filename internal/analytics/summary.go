package analytics

import (
	"fmt"
	"sort"
	"time"

	"finsight/internal/core"
)

// Totals are absolute major-unit sums per top-level bucket.
type Totals struct {
	Mandatory float64 `json:"mandatory"`
	Optional  float64 `json:"optional"`
	Savings   float64 `json:"savings"`
	Income    float64 `json:"income"`
}

// Spend is the combined outgoing total across the three spend buckets.
func (t Totals) Spend() float64 {
	return t.Mandatory + t.Optional + t.Savings
}

func (t *Totals) add(bucket core.CategoryType, amount float64) {
	switch bucket {
	case core.CategoryMandatory:
		t.Mandatory += amount
	case core.CategoryOptional:
		t.Optional += amount
	case core.CategorySavings:
		t.Savings += amount
	case core.CategoryIncome:
		t.Income += amount
	}
}

// CategoryBreakdown is one category's absolute total for the dashboard.
type CategoryBreakdown struct {
	Label  string            `json:"label"`
	Amount float64           `json:"amount"`
	Count  int               `json:"count"`
	Type   core.CategoryType `json:"type"`
}

// TimelinePoint is one month of per-bucket totals plus net cashflow.
type TimelinePoint struct {
	Month     string  `json:"month"`
	Mandatory float64 `json:"mandatory"`
	Optional  float64 `json:"optional"`
	Savings   float64 `json:"savings"`
	Income    float64 `json:"income"`
	Net       float64 `json:"net"`
}

// PendingTransaction is a spend record awaiting model classification.
type PendingTransaction struct {
	TransactionID        string            `json:"transactionId"`
	Description          string            `json:"description"`
	Amount               float64           `json:"amount"`
	CreatedAt            time.Time         `json:"createdAt"`
	DefaultCategoryType  core.CategoryType `json:"defaultCategoryType,omitempty"`
	DefaultCategoryLabel string            `json:"defaultCategoryLabel,omitempty"`
	MerchantName         string            `json:"merchantName,omitempty"`
}

// IncomeSource is one income-paying merchant's rollup.
type IncomeSource struct {
	MerchantKey  string  `json:"merchantKey"`
	MerchantName string  `json:"merchantName"`
	Total        float64 `json:"total"`
	AvgMonthly   float64 `json:"avgMonthly"`
	Months       int     `json:"months"`
	Transactions int     `json:"transactions"`
	Override     *bool   `json:"override"`
	Source       string  `json:"source"`
}

// Subscription insight statuses.
const (
	StatusSuggested  = "suggested"
	StatusOverridden = "overridden"
)

// SubscriptionInsight is the keep/reduce/cancel recommendation for one
// recurring merchant.
type SubscriptionInsight struct {
	MerchantKey         string            `json:"merchantKey"`
	MerchantName        string            `json:"merchantName"`
	MonthlyAmount       float64           `json:"monthlyAmount"`
	Months              int               `json:"months"`
	PrimaryCategoryType core.CategoryType `json:"primaryCategoryType"`
	Cadence             string            `json:"cadence,omitempty"`
	Recommendation      core.Decision     `json:"recommendation"`
	Confidence          float64           `json:"confidence"`
	Rationale           string            `json:"rationale"`
	Status              string            `json:"status"`
	LastTransactionAt   time.Time         `json:"lastTransactionAt"`
}

// RecurringMerchant is a compact per-merchant entry inside a category's
// recurring rollup.
type RecurringMerchant struct {
	MerchantKey   string  `json:"merchantKey"`
	MerchantName  string  `json:"merchantName"`
	MonthlyAmount float64 `json:"monthlyAmount"`
	Cadence       string  `json:"cadence,omitempty"`
}

// RecurringCategory is the recurring monthly commitment within one
// category slug.
type RecurringCategory struct {
	Amount    float64             `json:"amount"`
	Merchants []RecurringMerchant `json:"merchants"`
}

// BudgetRecommendation is a suggested monthly budget for one category,
// derived from the trailing history window.
type BudgetRecommendation struct {
	Key                string              `json:"key"`
	CategoryKey        string              `json:"categoryKey"`
	Label              string              `json:"label"`
	Type               core.CategoryType   `json:"type"`
	TotalLast12        float64             `json:"totalLast12"`
	AveragePerMonth    float64             `json:"averagePerMonth"`
	RecommendedMonthly float64             `json:"recommendedMonthly"`
	RecurringMonthly   float64             `json:"recurringMonthly"`
	RecurringMerchants []RecurringMerchant `json:"recurringMerchants"`
	MonthsSampled      int                 `json:"monthsSampled"`
	MonthBreakdown     []MonthPoint        `json:"monthBreakdown"`
}

// Overrides are the manual per-merchant decisions read at the start of
// a run. They always win over inferred values.
type Overrides struct {
	Income       map[string]bool
	Subscription map[string]core.SubscriptionOverride
}

// Summary is the single-pass rollup over a user's transaction history.
type Summary struct {
	Totals                   Totals                       `json:"totals"`
	Categories               []CategoryBreakdown          `json:"categories"`
	Monthly                  map[string]Totals            `json:"monthly"`
	SpendTimeline            []TimelinePoint              `json:"spendTimeline"`
	MerchantSummary          []MerchantProfile            `json:"merchantSummary"`
	PendingClassification    []PendingTransaction         `json:"pendingClassification"`
	PendingCount             int                          `json:"pendingCount"`
	NetCashflow              float64                      `json:"netCashflow"`
	IncomeSources            []IncomeSource               `json:"incomeSources"`
	SubscriptionInsights     []SubscriptionInsight        `json:"subscriptionInsights"`
	BudgetRecommendations    []BudgetRecommendation       `json:"budgetRecommendations"`
	RecurringCategorySummary map[string]RecurringCategory `json:"recurringCategorySummary"`
}

type categoryInsight struct {
	key           string
	categoryKey   string
	label         string
	categoryType  core.CategoryType
	total12       float64
	monthlyTotals map[string]float64
}

type incomeAccumulator struct {
	merchantKey  string
	merchantName string
	total        float64
	transactions int
	months       map[string]struct{}
	override     *bool
	source       string
}

// Summarise folds a user's transactions into the full summary rollup.
// The fold is order-independent; now anchors the trailing history
// window.
func Summarise(transactions []core.Transaction, overrides Overrides, cfg Config, now time.Time) Summary {
	var totals Totals
	monthly := make(map[string]*Totals)
	categoryTotals := make(map[string]*CategoryBreakdown)
	merchants := make(map[string]*merchantAccumulator)
	insights := make(map[string]*categoryInsight)
	incomes := make(map[string]*incomeAccumulator)

	var pending []PendingTransaction
	pendingCount := 0

	windowStart := now.UTC().AddDate(0, -cfg.HistoryMonths, 0)

	for _, tx := range transactions {
		if tx.Amount == 0 {
			continue
		}

		bucket := tx.ResolvedCategoryType()
		if bucket == core.CategoryBankTransfer || bucket == core.CategoryUnknown {
			continue
		}

		absAmount := tx.Amount
		if absAmount < 0 {
			absAmount = -absAmount
		}
		merchantKey := tx.MerchantKey
		monthKey := tx.MonthKey
		if monthKey == "" {
			monthKey = core.MonthKey(tx.CreatedAt)
		}

		override, hasOverride := lookupIncomeOverride(overrides.Income, merchantKey)
		defaultIncome := tx.Amount > 0 &&
			absAmount >= cfg.IncomeThreshold &&
			(bucket == core.CategoryIncome || tx.UserCategoryType == "")
		isIncome := defaultIncome
		if hasOverride {
			isIncome = override
		}
		if isIncome {
			bucket = core.CategoryIncome
			if merchantKey != "" {
				entry := incomes[merchantKey]
				if entry == nil {
					entry = &incomeAccumulator{
						merchantKey:  merchantKey,
						merchantName: merchantDisplayName(tx.MerchantName),
						months:       make(map[string]struct{}),
						source:       "detected",
					}
					if hasOverride {
						v := override
						entry.override = &v
						entry.source = "manual"
					}
					incomes[merchantKey] = entry
				}
				entry.total += absAmount
				entry.transactions++
				if monthKey != "" {
					entry.months[monthKey] = struct{}{}
				}
			}
		}

		label := tx.ResolvedCategoryLabel()
		slug := core.NormalizeCategoryKey(label)
		insightKey := fmt.Sprintf("%s__%s", bucket, slug)

		insight := insights[insightKey]
		if insight == nil {
			insight = &categoryInsight{
				key:           insightKey,
				categoryKey:   slug,
				label:         label,
				categoryType:  bucket,
				monthlyTotals: make(map[string]float64),
			}
			insights[insightKey] = insight
		}
		if !tx.CreatedAt.IsZero() && !tx.CreatedAt.Before(windowStart) {
			insight.total12 += absAmount
			if monthKey != "" {
				insight.monthlyTotals[monthKey] += absAmount
			}
		}

		totals.add(bucket, absAmount)

		if monthKey != "" {
			monthTotals := monthly[monthKey]
			if monthTotals == nil {
				monthTotals = &Totals{}
				monthly[monthKey] = monthTotals
			}
			monthTotals.add(bucket, absAmount)
		}

		entry := categoryTotals[insightKey]
		if entry == nil {
			entry = &CategoryBreakdown{Label: label, Type: bucket}
			categoryTotals[insightKey] = entry
		}
		entry.Amount += absAmount
		entry.Count++

		isSpend := tx.Amount < 0 && bucket != core.CategoryIncome
		if !isSpend {
			continue
		}

		spendKey := merchantKey
		if spendKey == "" {
			spendKey = core.NormalizeMerchantKey(tx.ID)
		}
		acc := merchants[spendKey]
		if acc == nil {
			acc = newMerchantAccumulator(spendKey, tx.MerchantName)
			merchants[spendKey] = acc
		}
		acc.observe(absAmount, bucket, insightKey, tx.CreatedAt)

		if !tx.IsClassified() {
			pendingCount++
			if len(pending) < cfg.MaxPending {
				pending = append(pending, PendingTransaction{
					TransactionID:        tx.ID,
					Description:          pendingDescription(tx, label),
					Amount:               absAmount,
					CreatedAt:            tx.CreatedAt,
					DefaultCategoryType:  tx.DefaultCategoryType,
					DefaultCategoryLabel: tx.DefaultCategoryLabel,
					MerchantName:         tx.MerchantName,
				})
			}
		}
	}

	summary := Summary{
		Totals:                totals,
		Monthly:               make(map[string]Totals, len(monthly)),
		PendingClassification: pending,
		PendingCount:          pendingCount,
		NetCashflow:           totals.Income - totals.Spend(),
	}

	summary.Categories = buildCategories(categoryTotals, cfg.MaxCategories)
	summary.SpendTimeline = buildTimeline(monthly)
	for month, t := range monthly {
		summary.Monthly[month] = *t
	}

	recurringByCategory := make(map[string]*RecurringCategory)
	summary.MerchantSummary = buildMerchantSummary(merchants, recurringByCategory, cfg)
	summary.IncomeSources = buildIncomeSources(incomes)
	summary.SubscriptionInsights = buildSubscriptionInsights(summary.MerchantSummary, overrides.Subscription, cfg)
	summary.BudgetRecommendations = buildBudgetRecommendations(insights, recurringByCategory, cfg)
	summary.RecurringCategorySummary = finalizeRecurringCategories(recurringByCategory)

	return summary
}

// RecurringMerchants filters the merchant summary down to recurring
// entries for the snapshot.
func (s Summary) RecurringMerchants(limit int) []MerchantProfile {
	var recurring []MerchantProfile
	for _, m := range s.MerchantSummary {
		if m.IsRecurring {
			recurring = append(recurring, m)
			if limit > 0 && len(recurring) == limit {
				break
			}
		}
	}
	return recurring
}

func lookupIncomeOverride(overrides map[string]bool, merchantKey string) (bool, bool) {
	if merchantKey == "" || overrides == nil {
		return false, false
	}
	v, ok := overrides[merchantKey]
	return v, ok
}

func pendingDescription(tx core.Transaction, label string) string {
	if tx.Description != "" {
		return tx.Description
	}
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	return label
}

func buildCategories(categoryTotals map[string]*CategoryBreakdown, limit int) []CategoryBreakdown {
	categories := make([]CategoryBreakdown, 0, len(categoryTotals))
	for _, entry := range categoryTotals {
		categories = append(categories, *entry)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Amount != categories[j].Amount {
			return categories[i].Amount > categories[j].Amount
		}
		return categories[i].Label < categories[j].Label
	})
	if limit > 0 && len(categories) > limit {
		categories = categories[:limit]
	}
	return categories
}

func buildTimeline(monthly map[string]*Totals) []TimelinePoint {
	months := make([]string, 0, len(monthly))
	for month := range monthly {
		months = append(months, month)
	}
	sort.Strings(months)

	timeline := make([]TimelinePoint, 0, len(months))
	for _, month := range months {
		t := monthly[month]
		timeline = append(timeline, TimelinePoint{
			Month:     month,
			Mandatory: t.Mandatory,
			Optional:  t.Optional,
			Savings:   t.Savings,
			Income:    t.Income,
			Net:       t.Income - t.Spend(),
		})
	}
	return timeline
}

func buildMerchantSummary(merchants map[string]*merchantAccumulator, recurringByCategory map[string]*RecurringCategory, cfg Config) []MerchantProfile {
	profiles := make([]MerchantProfile, 0, len(merchants))
	for _, acc := range merchants {
		profile := acc.profile(cfg)
		profiles = append(profiles, profile)

		if !profile.IsRecurring || profile.MonthlyAmount <= 0 || acc.totalSpend <= 0 {
			continue
		}
		// Apportion the merchant's monthly equivalent across the
		// category slugs its spend actually touched.
		for categoryKeyFull, amount := range acc.byCategoryKey {
			if amount <= 0 {
				continue
			}
			share := amount / acc.totalSpend
			slug := categorySlugOf(categoryKeyFull)
			if slug == "" {
				continue
			}
			monthlyForCategory := profile.MonthlyAmount * share
			current := recurringByCategory[slug]
			if current == nil {
				current = &RecurringCategory{}
				recurringByCategory[slug] = current
			}
			current.Amount += monthlyForCategory
			current.Merchants = append(current.Merchants, RecurringMerchant{
				MerchantKey:   profile.MerchantKey,
				MerchantName:  profile.MerchantName,
				MonthlyAmount: round2(monthlyForCategory),
				Cadence:       effectiveCadence(profile, cfg),
			})
		}
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].TotalSpend != profiles[j].TotalSpend {
			return profiles[i].TotalSpend > profiles[j].TotalSpend
		}
		return profiles[i].MerchantKey < profiles[j].MerchantKey
	})
	if cfg.MaxMerchants > 0 && len(profiles) > cfg.MaxMerchants {
		profiles = profiles[:cfg.MaxMerchants]
	}
	return profiles
}

func categorySlugOf(insightKey string) string {
	for i := 0; i+1 < len(insightKey); i++ {
		if insightKey[i] == '_' && insightKey[i+1] == '_' {
			return insightKey[i+2:]
		}
	}
	return insightKey
}

// effectiveCadence falls back to monthly when month evidence alone
// marked the merchant recurring.
func effectiveCadence(profile MerchantProfile, cfg Config) string {
	if profile.Cadence != "" {
		return profile.Cadence
	}
	if profile.Months >= cfg.SubscriptionMinMonths {
		return CadenceMonthly
	}
	return ""
}

func buildIncomeSources(incomes map[string]*incomeAccumulator) []IncomeSource {
	sources := make([]IncomeSource, 0, len(incomes))
	for _, entry := range incomes {
		monthCount := len(entry.months)
		if monthCount == 0 {
			monthCount = 1
		}
		sources = append(sources, IncomeSource{
			MerchantKey:  entry.merchantKey,
			MerchantName: entry.merchantName,
			Total:        round2(entry.total),
			AvgMonthly:   round2(entry.total / float64(monthCount)),
			Months:       len(entry.months),
			Transactions: entry.transactions,
			Override:     entry.override,
			Source:       entry.source,
		})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Total != sources[j].Total {
			return sources[i].Total > sources[j].Total
		}
		return sources[i].MerchantKey < sources[j].MerchantKey
	})
	return sources
}

func buildSubscriptionInsights(merchantSummary []MerchantProfile, overrides map[string]core.SubscriptionOverride, cfg Config) []SubscriptionInsight {
	var insights []SubscriptionInsight
	for _, m := range merchantSummary {
		if !m.IsRecurring {
			continue
		}

		monthlyAmount := round2(m.MonthlyAmount)
		if monthlyAmount == 0 {
			monthlyAmount = round2(m.AvgAmount)
		}
		cadence := effectiveCadence(m, cfg)

		recommendation := core.DecisionKeep
		confidence := 0.55
		rationale := fmt.Sprintf("Recurring spend detected (£%.2f per %s across %d months).",
			monthlyAmount, cadenceOrPeriod(cadence), m.Months)

		switch m.PrimaryCategoryType {
		case core.CategoryOptional:
			if monthlyAmount >= cfg.StrongMonthlyThreshold {
				recommendation = core.DecisionCancel
				confidence = 0.8
				rationale += " Amount is above discretionary threshold."
			} else {
				recommendation = core.DecisionReduce
				confidence = 0.7
				rationale += " Consider reducing discretionary spend."
			}
		case core.CategorySavings:
			recommendation = core.DecisionKeep
			confidence = 0.6
			rationale += " Categorised as savings transfer."
		}

		status := StatusSuggested
		if override, ok := overrides[m.MerchantKey]; ok && override.Decision != "" {
			recommendation = override.Decision
			confidence = 1
			if override.Note != "" {
				rationale = override.Note
			}
			status = StatusOverridden
		}

		insights = append(insights, SubscriptionInsight{
			MerchantKey:         m.MerchantKey,
			MerchantName:        m.MerchantName,
			MonthlyAmount:       monthlyAmount,
			Months:              m.Months,
			PrimaryCategoryType: m.PrimaryCategoryType,
			Cadence:             cadence,
			Recommendation:      recommendation,
			Confidence:          confidence,
			Rationale:           rationale,
			Status:              status,
			LastTransactionAt:   m.LastTransactionAt,
		})
	}
	return insights
}

func cadenceOrPeriod(cadence string) string {
	if cadence == "" {
		return "period"
	}
	return cadence
}

func buildBudgetRecommendations(insights map[string]*categoryInsight, recurringByCategory map[string]*RecurringCategory, cfg Config) []BudgetRecommendation {
	months := cfg.HistoryMonths
	if months <= 0 {
		months = 12
	}

	recommendations := make([]BudgetRecommendation, 0, len(insights))
	for _, entry := range insights {
		breakdown := make([]MonthPoint, 0, len(entry.monthlyTotals))
		for month, amount := range entry.monthlyTotals {
			breakdown = append(breakdown, MonthPoint{Month: month, Amount: amount})
		}
		sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Month < breakdown[j].Month })
		if len(breakdown) > months {
			breakdown = breakdown[len(breakdown)-months:]
		}

		averagePerMonth := entry.total12 / float64(months)

		recurringMonthly := 0.0
		var recurringMerchants []RecurringMerchant
		if meta := recurringByCategory[entry.categoryKey]; meta != nil {
			recurringMonthly = round2(meta.Amount)
			recurringMerchants = topRecurringMerchants(meta.Merchants, 6)
		}

		nonRecurring := averagePerMonth - recurringMonthly
		if nonRecurring < 0 {
			nonRecurring = 0
		}

		recommended := averagePerMonth
		switch entry.categoryType {
		case core.CategoryOptional:
			recommended = recurringMonthly + nonRecurring*cfg.DiscretionaryTrimFactor
		case core.CategorySavings:
			recommended = averagePerMonth * cfg.SavingsBoostFactor
			if recurringMonthly > recommended {
				recommended = recurringMonthly
			}
		}
		recommended = round2(recommended)
		// A recommendation never implies dropping a committed
		// recurring payment.
		if recommended < recurringMonthly {
			recommended = recurringMonthly
		}

		recommendations = append(recommendations, BudgetRecommendation{
			Key:                entry.key,
			CategoryKey:        entry.categoryKey,
			Label:              entry.label,
			Type:               entry.categoryType,
			TotalLast12:        round2(entry.total12),
			AveragePerMonth:    round2(averagePerMonth),
			RecommendedMonthly: recommended,
			RecurringMonthly:   recurringMonthly,
			RecurringMerchants: recurringMerchants,
			MonthsSampled:      len(entry.monthlyTotals),
			MonthBreakdown:     breakdown,
		})
	}

	sort.Slice(recommendations, func(i, j int) bool {
		if recommendations[i].TotalLast12 != recommendations[j].TotalLast12 {
			return recommendations[i].TotalLast12 > recommendations[j].TotalLast12
		}
		return recommendations[i].Key < recommendations[j].Key
	})
	return recommendations
}

func topRecurringMerchants(merchants []RecurringMerchant, limit int) []RecurringMerchant {
	sorted := append([]RecurringMerchant(nil), merchants...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MonthlyAmount != sorted[j].MonthlyAmount {
			return sorted[i].MonthlyAmount > sorted[j].MonthlyAmount
		}
		return sorted[i].MerchantKey < sorted[j].MerchantKey
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func finalizeRecurringCategories(recurringByCategory map[string]*RecurringCategory) map[string]RecurringCategory {
	result := make(map[string]RecurringCategory, len(recurringByCategory))
	for slug, meta := range recurringByCategory {
		result[slug] = RecurringCategory{
			Amount:    round2(meta.Amount),
			Merchants: topRecurringMerchants(meta.Merchants, 6),
		}
	}
	return result
}
