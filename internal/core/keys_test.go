package core

import (
	"testing"
	"time"
)

func TestNormalizeMerchantKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Netflix.com", "netflix com"},
		{"  TESCO STORES 2041  ", "tesco stores 2041"},
		{"Café Nero", "café nero"},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeMerchantKey(tc.in); got != tc.want {
			t.Errorf("NormalizeMerchantKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCategoryKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Eating Out", "eating_out"},
		{"groceries", "groceries"},
		{"  ", "uncategorised"},
	}
	for _, tc := range cases {
		if got := NormalizeCategoryKey(tc.in); got != tc.want {
			t.Errorf("NormalizeCategoryKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMonthKeyUsesUTC(t *testing.T) {
	// 23:30 on Jan 31 in UTC-2 is already February in UTC.
	loc := time.FixedZone("west", -2*60*60)
	ts := time.Date(2023, 1, 31, 23, 30, 0, 0, loc)
	if got := MonthKey(ts); got != "2023-02" {
		t.Errorf("MonthKey = %q, want 2023-02", got)
	}
	if got := MonthKey(time.Time{}); got != "" {
		t.Errorf("MonthKey(zero) = %q, want empty", got)
	}
}

func TestNormalizeBucket(t *testing.T) {
	cases := []struct {
		in   string
		want CategoryType
	}{
		{"discretionary", CategoryOptional},
		{"optional", CategoryOptional},
		{"savings", CategorySavings},
		{"investment", CategorySavings},
		{"net_salary", CategoryIncome},
		{"debt_repayment", CategoryMandatory},
		{"bank_transfer", CategoryBankTransfer},
		{"", CategoryUnknown},
	}
	for _, tc := range cases {
		if got := NormalizeBucket(tc.in); got != tc.want {
			t.Errorf("NormalizeBucket(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCoerceCategoryType(t *testing.T) {
	if got := CoerceCategoryType("bank_transfer", CategoryOptional); got != CategoryOptional {
		t.Errorf("transfer should fall back to optional, got %q", got)
	}
	if got := CoerceCategoryType("Mandatory", CategoryOptional); got != CategoryMandatory {
		t.Errorf("got %q, want mandatory", got)
	}
	if got := CoerceCategoryType("nonsense", CategoryUnknown); got != CategoryOptional {
		t.Errorf("unsafe fallback should land on optional, got %q", got)
	}
}

func TestResolvedCategoryTypePrecedence(t *testing.T) {
	tx := Transaction{Amount: -12.5, ProviderCategory: "groceries"}
	if got := tx.ResolvedCategoryType(); got != CategoryMandatory {
		t.Errorf("provider inference: got %q, want mandatory", got)
	}

	tx.DefaultCategoryType = CategoryOptional
	if got := tx.ResolvedCategoryType(); got != CategoryOptional {
		t.Errorf("default should beat provider inference, got %q", got)
	}

	tx.AICategoryType = CategorySavings
	if got := tx.ResolvedCategoryType(); got != CategorySavings {
		t.Errorf("model category should beat default, got %q", got)
	}

	tx.UserCategoryType = CategoryMandatory
	if got := tx.ResolvedCategoryType(); got != CategoryMandatory {
		t.Errorf("manual category should win, got %q", got)
	}
}

func TestIsClassified(t *testing.T) {
	if (Transaction{}).IsClassified() {
		t.Error("empty transaction should not be classified")
	}
	if !(Transaction{AICategoryType: CategoryOptional}).IsClassified() {
		t.Error("model-labelled transaction should be classified")
	}
}

func TestBudgetEntryMonthlyTarget(t *testing.T) {
	fixed := BudgetEntry{Mode: BudgetFixed, Amount: 250}
	if got := fixed.MonthlyTarget(0); got != 250 {
		t.Errorf("fixed target = %v, want 250", got)
	}
	percent := BudgetEntry{Mode: BudgetPercent, Percent: 10}
	if got := percent.MonthlyTarget(3000); got != 300 {
		t.Errorf("percent target = %v, want 300", got)
	}
	if got := percent.MonthlyTarget(0); got != 0 {
		t.Errorf("percent of zero income = %v, want 0", got)
	}
}
