package google

import (
	"context"
	"testing"
	"time"

	"finsight/internal/analytics"
)

func TestBuildSnapshotRow(t *testing.T) {
	snapshot := &analytics.Snapshot{
		OwnerUID: "user-1",
		RunID:    "run-42",
		Currency: "GBP",
		Totals: analytics.Totals{
			Income:    2500,
			Mandatory: 900,
			Optional:  300,
			Savings:   200,
		},
		NetCashflow: 1100,
		RecurringMerchants: []analytics.MerchantProfile{
			{MerchantKey: "netflix"},
			{MerchantKey: "peak gym"},
		},
		PendingCount: 3,
		GoalAlignment: analytics.GoalAlignment{
			Goals: []analytics.GoalSummary{{GoalID: "goal-1"}},
		},
		UpdatedAt: time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC),
	}

	row := buildSnapshotRow("user-1", snapshot)

	want := []any{
		"2024-04-01T09:30:00Z",
		"user-1",
		"run-42",
		"GBP",
		2500.0,
		900.0,
		300.0,
		200.0,
		1100.0,
		2,
		3,
		1,
	}
	if len(row) != len(want) {
		t.Fatalf("buildSnapshotRow() has %d columns, want %d", len(row), len(want))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "", "Snapshots"); err == nil {
		t.Error("New() with empty spreadsheet id should fail")
	}
}
