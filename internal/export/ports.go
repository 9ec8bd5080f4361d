// Package export delivers finished analytics snapshots to out-of-band
// destinations such as spreadsheets.
package export

import (
	"context"

	"finsight/internal/analytics"
)

// SnapshotWriter receives a completed snapshot for delivery. Writers
// must tolerate being called repeatedly for the same user; each call
// represents a newer run.
type SnapshotWriter interface {
	ExportSnapshot(ctx context.Context, userID string, snapshot *analytics.Snapshot) error
}
