package core

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// NormalizeMerchantKey folds a counterparty name into the case-insensitive
// key used to group transactions for recurring detection.
func NormalizeMerchantKey(raw string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeCategoryKey slugs a category label into a stable lookup key.
func NormalizeCategoryKey(raw string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSep = false
			continue
		}
		if !lastSep {
			b.WriteByte('_')
			lastSep = true
		}
	}
	key := strings.Trim(b.String(), "_")
	if key == "" {
		return "uncategorised"
	}
	return key
}

// MonthKey derives the YYYY-MM key from a timestamp, always in UTC.
func MonthKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	u := t.UTC()
	return fmt.Sprintf("%04d-%02d", u.Year(), int(u.Month()))
}

// CategoryTypeFrom maps a stored or model-provided value onto the
// closed category enum, after legacy-spelling normalisation. ok is
// false for values outside the enum.
func CategoryTypeFrom(value string) (CategoryType, bool) {
	candidate := NormalizeBucket(value)
	switch candidate {
	case CategoryMandatory, CategoryOptional, CategorySavings,
		CategoryIncome, CategoryBankTransfer, CategoryUnknown:
		return candidate, true
	}
	return candidate, false
}

// CoerceCategoryType clamps an arbitrary string to one of the safe
// buckets, falling back when the value is outside the closed set.
func CoerceCategoryType(value string, fallback CategoryType) CategoryType {
	candidate := NormalizeBucket(value)
	for _, safe := range SafeCategoryTypes {
		if candidate == safe {
			return candidate
		}
	}
	for _, safe := range SafeCategoryTypes {
		if fallback == safe {
			return fallback
		}
	}
	return CategoryOptional
}

// NormalizeBucket maps legacy bucket spellings onto the canonical set.
// "discretionary" is the legacy name for the optional bucket.
func NormalizeBucket(raw string) CategoryType {
	bucket := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case bucket == "":
		return CategoryUnknown
	case bucket == "discretionary":
		return CategoryOptional
	case strings.Contains(bucket, "saving") || bucket == "investment":
		return CategorySavings
	case bucket == "net_salary" || bucket == "irregular_income":
		return CategoryIncome
	case bucket == "debt_repayment":
		return CategoryMandatory
	}
	return CategoryType(bucket)
}

// providerCategoryTypes maps banking-provider category keys onto buckets.
var providerCategoryTypes = map[string]CategoryType{
	"bills":         CategoryMandatory,
	"entertainment": CategoryOptional,
	"expenses":      CategoryMandatory,
	"family":        CategoryMandatory,
	"transport":     CategoryMandatory,
	"groceries":     CategoryMandatory,
	"eating_out":    CategoryOptional,
	"holidays":      CategoryOptional,
	"shopping":      CategoryOptional,
	"personal_care": CategoryOptional,
	"cash":          CategoryOptional,
	"general":       CategoryOptional,
	"investments":   CategorySavings,
	"transfers":     CategorySavings,
	"savings":       CategorySavings,
	"charity":       CategoryMandatory,
	"business":      CategoryMandatory,
}

// InferCategoryType derives a bucket from the provider category key,
// defaulting by amount sign when the key is unmapped.
func InferCategoryType(providerCategory string, amount float64) CategoryType {
	if mapped, ok := providerCategoryTypes[strings.ToLower(strings.TrimSpace(providerCategory))]; ok {
		return mapped
	}
	if amount >= 0 {
		return CategoryIncome
	}
	return CategoryOptional
}
