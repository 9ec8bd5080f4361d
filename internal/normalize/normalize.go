// Package normalize converts heterogeneous raw bank records into the
// canonical transaction shape used by the analytics engine.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

// ambiguousMinorCutoff: legacy provider payloads sometimes carry a
// major-unit value in the nested raw amount field. Values below this
// are treated as already-major rather than minor units.
const ambiguousMinorCutoff = 10

// RawMerchant is the nested merchant object some providers send.
type RawMerchant struct {
	Name string `json:"name"`
}

// RawProviderData is the provider-specific nested payload. Its amount,
// when present, is normally in minor units.
type RawProviderData struct {
	Amount   *float64 `json:"amount"`
	Category string   `json:"category"`
}

// Record is one raw transaction record of unknown shape, as delivered
// by the banking sync collaborator.
type Record struct {
	ID          string   `json:"id"`
	Amount      *float64 `json:"amount"`
	AmountMinor *int64   `json:"amountMinor"`
	AmountText  string   `json:"amountText,omitempty"`
	Currency    string   `json:"currency"`

	Merchant    *RawMerchant `json:"merchant,omitempty"`
	Description string       `json:"description,omitempty"`

	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	CreatedISO string     `json:"createdISO,omitempty"`

	UserCategoryType  string `json:"userCategoryType,omitempty"`
	UserCategoryLabel string `json:"userCategoryLabel,omitempty"`
	AICategoryType    string `json:"aiCategoryType,omitempty"`
	AICategoryLabel   string `json:"aiCategoryLabel,omitempty"`

	Raw *RawProviderData `json:"raw,omitempty"`

	LinkedGoalID   string `json:"linkedGoalId,omitempty"`
	IsSubscription bool   `json:"isSubscription,omitempty"`
}

// Normalize converts one raw record into the canonical transaction.
// Malformed records return core.ErrSkipRecord (wrapped with the cause)
// and must be skipped, never aborting the batch.
func Normalize(userID string, r Record) (core.Transaction, error) {
	amount, err := resolveAmount(r)
	if err != nil {
		return core.Transaction{}, err
	}

	createdAt, err := resolveCreatedAt(r)
	if err != nil {
		return core.Transaction{}, err
	}

	merchantName := merchantNameOf(r)
	merchantKey := core.NormalizeMerchantKey(merchantName)
	if merchantKey == "" && r.ID != "" {
		merchantKey = core.NormalizeMerchantKey(r.ID)
	}

	tx := core.Transaction{
		ID:             r.ID,
		UserID:         userID,
		Amount:         amount,
		Currency:       strings.ToUpper(strings.TrimSpace(r.Currency)),
		Description:    strings.TrimSpace(r.Description),
		MerchantName:   merchantName,
		MerchantKey:    merchantKey,
		CreatedAt:      createdAt,
		MonthKey:       core.MonthKey(createdAt),
		LinkedGoalID:   strings.TrimSpace(r.LinkedGoalID),
		IsSubscription: r.IsSubscription,
	}
	if tx.Currency == "" {
		tx.Currency = "GBP"
	}

	if r.UserCategoryType != "" {
		tx.UserCategoryType = core.CoerceCategoryType(r.UserCategoryType, signFallback(amount))
		tx.UserCategoryLabel = strings.TrimSpace(r.UserCategoryLabel)
	}
	if r.AICategoryType != "" {
		tx.AICategoryType = core.CoerceCategoryType(r.AICategoryType, signFallback(amount))
		tx.AICategoryLabel = strings.TrimSpace(r.AICategoryLabel)
	}
	if r.Raw != nil && r.Raw.Category != "" {
		tx.ProviderCategory = strings.ToLower(strings.TrimSpace(r.Raw.Category))
		tx.DefaultCategoryType = core.InferCategoryType(tx.ProviderCategory, amount)
		tx.DefaultCategoryLabel = tx.ProviderCategory
	}

	return tx, nil
}

// NormalizeJSON decodes and normalises a JSON-encoded raw record.
func NormalizeJSON(userID string, payload []byte) (core.Transaction, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: decode: %v", core.ErrSkipRecord, err)
	}
	return Normalize(userID, r)
}

// resolveAmount applies the amount-source preference order: an explicit
// minor-unit field, then a major-unit field, then a textual amount, and
// finally the provider's nested raw amount with the legacy heuristic.
func resolveAmount(r Record) (float64, error) {
	if r.AmountMinor != nil {
		return float64(*r.AmountMinor) / 100, nil
	}
	if r.Amount != nil {
		if !isFinite(*r.Amount) {
			return 0, fmt.Errorf("%w: non-finite amount", core.ErrSkipRecord)
		}
		return *r.Amount, nil
	}
	if text := strings.TrimSpace(r.AmountText); text != "" {
		return parseAmountText(text)
	}
	if r.Raw != nil && r.Raw.Amount != nil {
		raw := *r.Raw.Amount
		if !isFinite(raw) {
			return 0, fmt.Errorf("%w: non-finite raw amount", core.ErrSkipRecord)
		}
		if math.Abs(raw) < ambiguousMinorCutoff {
			return raw, nil
		}
		return raw / 100, nil
	}
	return 0, fmt.Errorf("%w: no amount field", core.ErrSkipRecord)
}

// parseAmountText parses display-formatted amounts ("£1,234.56",
// "(12.30)", "-12,30") exactly, without float round-tripping.
func parseAmountText(text string) (float64, error) {
	negative := false
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		negative = true
		text = text[1 : len(text)-1]
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '£', '$', '€', ' ':
			return -1
		}
		return r
	}, text)
	if strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: amount text %q: %v", core.ErrSkipRecord, text, err)
	}
	if negative {
		d = d.Abs().Neg()
	}
	value, _ := d.Round(2).Float64()
	return value, nil
}

func resolveCreatedAt(r Record) (time.Time, error) {
	if r.CreatedAt != nil && !r.CreatedAt.IsZero() {
		return r.CreatedAt.UTC(), nil
	}
	if iso := strings.TrimSpace(r.CreatedISO); iso != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, iso); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unparsable timestamp %q", core.ErrSkipRecord, iso)
	}
	return time.Time{}, fmt.Errorf("%w: no creation timestamp", core.ErrSkipRecord)
}

func merchantNameOf(r Record) string {
	if r.Merchant != nil && strings.TrimSpace(r.Merchant.Name) != "" {
		return strings.TrimSpace(r.Merchant.Name)
	}
	return strings.TrimSpace(r.Description)
}

func signFallback(amount float64) core.CategoryType {
	if amount >= 0 {
		return core.CategoryIncome
	}
	return core.CategoryOptional
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
