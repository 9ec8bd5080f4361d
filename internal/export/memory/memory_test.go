package memory

import (
	"context"
	"testing"
	"time"

	"finsight/internal/analytics"
)

func TestExportSnapshot(t *testing.T) {
	store := New()
	ctx := context.Background()

	first := &analytics.Snapshot{
		OwnerUID:  "user-1",
		RunID:     "run-1",
		Currency:  "GBP",
		UpdatedAt: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := store.ExportSnapshot(ctx, "user-1", first); err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}

	got, ok := store.Snapshot("user-1")
	if !ok {
		t.Fatal("Snapshot() ok = false, want true")
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", got.RunID)
	}

	// A second run for the same user replaces the first.
	second := &analytics.Snapshot{OwnerUID: "user-1", RunID: "run-2"}
	if err := store.ExportSnapshot(ctx, "user-1", second); err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	got, _ = store.Snapshot("user-1")
	if got.RunID != "run-2" {
		t.Errorf("RunID after replace = %q, want run-2", got.RunID)
	}
	if store.Exports() != 2 {
		t.Errorf("Exports() = %d, want 2", store.Exports())
	}

	if _, ok := store.Snapshot("missing"); ok {
		t.Error("Snapshot() for unknown user ok = true, want false")
	}
}

func TestExportSnapshotRejectsInvalid(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.ExportSnapshot(ctx, "", &analytics.Snapshot{}); err == nil {
		t.Error("ExportSnapshot() with empty user id should fail")
	}
	if err := store.ExportSnapshot(ctx, "user-1", nil); err == nil {
		t.Error("ExportSnapshot() with nil snapshot should fail")
	}
}
