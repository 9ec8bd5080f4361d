package core

import (
	"errors"
	"time"
)

// CategoryType is the closed set of top-level spend buckets a transaction
// can belong to. Transfers and unknowns never contribute to totals.
type CategoryType string

const (
	CategoryMandatory    CategoryType = "mandatory"
	CategoryOptional     CategoryType = "optional"
	CategorySavings      CategoryType = "savings"
	CategoryIncome       CategoryType = "income"
	CategoryBankTransfer CategoryType = "bank_transfer"
	CategoryUnknown      CategoryType = "unknown"
)

// SafeCategoryTypes are the buckets that participate in spend/income totals.
var SafeCategoryTypes = []CategoryType{
	CategoryMandatory,
	CategoryOptional,
	CategorySavings,
	CategoryIncome,
}

// Decision is a manual disposition for a recurring merchant.
type Decision string

const (
	DecisionKeep   Decision = "keep"
	DecisionReduce Decision = "reduce"
	DecisionCancel Decision = "cancel"
)

var (
	ErrSkipRecord       = errors.New("record cannot be normalised")
	ErrNoClassification = errors.New("no classification available")
)

// Transaction is the canonical, normalised shape of one bank movement.
// Amount is signed and in major currency units (negative = spend).
// Classification fields are the only ones mutated after creation.
type Transaction struct {
	ID           string
	UserID       string
	Amount       float64
	Currency     string
	Description  string
	MerchantName string
	MerchantKey  string
	CreatedAt    time.Time
	MonthKey     string

	UserCategoryType     CategoryType
	UserCategoryLabel    string
	AICategoryType       CategoryType
	AICategoryLabel      string
	DefaultCategoryType  CategoryType
	DefaultCategoryLabel string
	ProviderCategory     string

	LinkedGoalID   string
	IsSubscription bool
}

// ResolvedCategoryType applies the classification precedence: manual, then
// model-inferred, then provider default, then the sign-based fallback.
// An explicit bank_transfer or unknown is preserved so the totals
// exclusion downstream can see it; only off-enum values fall back.
func (t Transaction) ResolvedCategoryType() CategoryType {
	fallback := CategoryOptional
	if t.Amount >= 0 {
		fallback = CategoryIncome
	}
	for _, candidate := range []CategoryType{t.UserCategoryType, t.AICategoryType, t.DefaultCategoryType} {
		if candidate == "" {
			continue
		}
		if canonical, ok := CategoryTypeFrom(string(candidate)); ok {
			return canonical
		}
		return CoerceCategoryType(string(candidate), fallback)
	}
	if t.ProviderCategory != "" {
		return InferCategoryType(t.ProviderCategory, t.Amount)
	}
	return fallback
}

// ResolvedCategoryLabel picks the best available human label.
func (t Transaction) ResolvedCategoryLabel() string {
	for _, candidate := range []string{t.UserCategoryLabel, t.AICategoryLabel, t.DefaultCategoryLabel} {
		if candidate != "" {
			return candidate
		}
	}
	if t.MerchantName != "" {
		return t.MerchantName
	}
	if t.Description != "" {
		return t.Description
	}
	if t.ProviderCategory != "" {
		return t.ProviderCategory
	}
	return "Uncategorised"
}

// IsClassified reports whether a manual or model category already exists.
// The classification adapter must not touch classified transactions.
func (t Transaction) IsClassified() bool {
	return t.UserCategoryType != "" || t.AICategoryType != ""
}

// Goal is a savings objective that may be funded by a bank pot.
type Goal struct {
	ID            string
	UserID        string
	Title         string
	Theme         int
	EstimatedCost float64
	LinkedPotID   string
	Status        int
}

// GoalStatusDone marks goals excluded from alignment.
const GoalStatusDone = 2

// Pot is a named sub-balance within a bank account. Balance is kept in
// minor units as delivered by the banking sync.
type Pot struct {
	ID           string
	UserID       string
	Name         string
	BalanceMinor int64
	Currency     string
}

// SubscriptionOverride is a manual per-merchant disposition that always
// wins over the inferred recommendation.
type SubscriptionOverride struct {
	Decision Decision
	Note     string
}

// BudgetMode selects how a budget entry resolves to a monthly amount.
type BudgetMode string

const (
	BudgetFixed   BudgetMode = "fixed"
	BudgetPercent BudgetMode = "percent"
)

// BudgetEntry is a user-authored monthly target for one category.
// Fixed entries carry a major-unit amount; percent entries are resolved
// against the current month's detected income.
type BudgetEntry struct {
	CategoryKey string
	Label       string
	Mode        BudgetMode
	Amount      float64
	Percent     float64
}

// MonthlyTarget resolves the entry to a major-unit monthly amount.
func (b BudgetEntry) MonthlyTarget(monthlyIncome float64) float64 {
	if b.Mode == BudgetPercent {
		target := monthlyIncome * (b.Percent / 100)
		if target < 0 {
			return 0
		}
		return target
	}
	if b.Amount < 0 {
		return 0
	}
	return b.Amount
}
