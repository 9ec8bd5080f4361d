// Package google exports analytics snapshots to a Google Sheet, one
// appended row per recomputation run.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"finsight/internal/analytics"
	ports "finsight/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.SnapshotWriter = (*Client)(nil)

// New creates a Sheets-backed snapshot writer. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Snapshots"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// ExportSnapshot appends one headline row for the run.
func (c *Client) ExportSnapshot(ctx context.Context, userID string, snapshot *analytics.Snapshot) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if snapshot == nil {
		return errors.New("nil snapshot")
	}

	rng := fmt.Sprintf("%s!A:L", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{buildSnapshotRow(userID, snapshot)}}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append snapshot row to %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Exported snapshot to sheet",
		"user_id", userID,
		"run_id", snapshot.RunID,
		"sheet", c.sheetName)

	return nil
}

// buildSnapshotRow flattens the headline numbers of a snapshot into a
// spreadsheet row.
func buildSnapshotRow(userID string, snapshot *analytics.Snapshot) []any {
	return []any{
		snapshot.UpdatedAt.UTC().Format(time.RFC3339),
		userID,
		snapshot.RunID,
		snapshot.Currency,
		snapshot.Totals.Income,
		snapshot.Totals.Mandatory,
		snapshot.Totals.Optional,
		snapshot.Totals.Savings,
		snapshot.NetCashflow,
		len(snapshot.RecurringMerchants),
		snapshot.PendingCount,
		len(snapshot.GoalAlignment.Goals),
	}
}
