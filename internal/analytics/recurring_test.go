package analytics

import (
	"math"
	"testing"
	"time"

	"finsight/internal/core"
)

func TestInferCadence(t *testing.T) {
	tests := []struct {
		days float64
		want string
	}{
		{0, ""},
		{7, CadenceWeekly},
		{10, CadenceWeekly},
		{14, CadenceFortnight},
		{30, CadenceMonthly},
		{45, CadenceMonthly},
		{60, CadenceBiMonthly},
		{91, CadenceQuarterly},
		{182, CadenceSemiAnnual},
		{365, CadenceAnnual},
		{400, CadenceAnnual},
		{450, ""},
	}
	for _, tt := range tests {
		if got := inferCadence(tt.days); got != tt.want {
			t.Errorf("inferCadence(%v) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestCadenceMonthlyMultiplier(t *testing.T) {
	tests := []struct {
		cadence string
		want    float64
	}{
		{CadenceWeekly, 4.33},
		{CadenceFortnight, 2.17},
		{CadenceMonthly, 1},
		{CadenceBiMonthly, 0.5},
		{CadenceQuarterly, 1.0 / 3},
		{CadenceSemiAnnual, 1.0 / 6},
		{CadenceAnnual, 1.0 / 12},
	}
	for _, tt := range tests {
		if got := cadenceMonthlyMultiplier(tt.cadence); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("cadenceMonthlyMultiplier(%q) = %v, want %v", tt.cadence, got, tt.want)
		}
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{nil, 0},
		{[]float64{5}, 5},
		{[]float64{31, 29}, 30},
		{[]float64{1, 100, 3}, 3},
		{[]float64{1, 2, 3, 4}, 2.5},
	}
	for _, tt := range tests {
		if got := median(tt.values); got != tt.want {
			t.Errorf("median(%v) = %v, want %v", tt.values, got, tt.want)
		}
	}
}

func merchantAcc(name string, observations []struct {
	amount float64
	at     time.Time
}) *merchantAccumulator {
	acc := newMerchantAccumulator(core.NormalizeMerchantKey(name), name)
	for _, obs := range observations {
		acc.observe(obs.amount, core.CategoryOptional, "optional__subscriptions", obs.at)
	}
	return acc
}

func TestProfileLowVarianceIsRecurring(t *testing.T) {
	acc := merchantAcc("Netflix", []struct {
		amount float64
		at     time.Time
	}{
		{9.99, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{9.99, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{10.01, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	})

	profile := acc.profile(DefaultConfig())

	if !profile.IsRecurring {
		t.Fatal("IsRecurring = false, want true for near-constant monthly amounts")
	}
	if profile.Cadence != CadenceMonthly {
		t.Errorf("Cadence = %q, want monthly", profile.Cadence)
	}
	if profile.Months != 3 {
		t.Errorf("Months = %d, want 3", profile.Months)
	}
	if math.Abs(profile.MonthlyAmount-10) > 0.01 {
		t.Errorf("MonthlyAmount = %v, want ≈10", profile.MonthlyAmount)
	}
	if profile.Variability > 0.01 {
		t.Errorf("Variability = %v, want near zero", profile.Variability)
	}
}

func TestProfileHighVarianceIsNotRecurring(t *testing.T) {
	acc := merchantAcc("Random Shop", []struct {
		amount float64
		at     time.Time
	}{
		{5, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{50, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)},
		{500, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
	})

	profile := acc.profile(DefaultConfig())

	if profile.IsRecurring {
		t.Fatalf("IsRecurring = true, want false for high variance (cv = %v)", profile.Variability)
	}
	if profile.Variability <= DefaultConfig().VarianceThreshold {
		t.Errorf("Variability = %v, expected above threshold", profile.Variability)
	}
}

func TestProfileCadenceEvidenceWithinOneMonth(t *testing.T) {
	// Four weekly charges inside a single month: month evidence alone
	// is insufficient, cadence evidence still marks it recurring.
	acc := merchantAcc("Coffee Club", []struct {
		amount float64
		at     time.Time
	}{
		{5, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{5, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)},
		{5, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{5, time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC)},
	})

	profile := acc.profile(DefaultConfig())

	if !profile.IsRecurring {
		t.Fatal("IsRecurring = false, want true on weekly cadence evidence")
	}
	if profile.Cadence != CadenceWeekly {
		t.Errorf("Cadence = %q, want weekly", profile.Cadence)
	}
	if math.Abs(profile.MonthlyAmount-round2(5*4.33)) > 1e-9 {
		t.Errorf("MonthlyAmount = %v, want %v", profile.MonthlyAmount, round2(5*4.33))
	}
}

func TestProfileFallbackMonthlyEquivalent(t *testing.T) {
	// A single charge has no cadence; the monthly equivalent falls back
	// to total spend over months touched.
	acc := merchantAcc("One Off", []struct {
		amount float64
		at     time.Time
	}{
		{120, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)},
	})

	profile := acc.profile(DefaultConfig())

	if profile.IsRecurring {
		t.Error("IsRecurring = true, want false for a single charge")
	}
	if profile.Cadence != "" {
		t.Errorf("Cadence = %q, want none", profile.Cadence)
	}
	if profile.MonthlyAmount != 120 {
		t.Errorf("MonthlyAmount = %v, want 120 (total/months fallback)", profile.MonthlyAmount)
	}
}
