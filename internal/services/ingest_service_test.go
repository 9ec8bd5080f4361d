package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/normalize"
)

type fakeUpserter struct {
	stored []core.Transaction
	err    error
}

func (f *fakeUpserter) UpsertTransactions(_ context.Context, transactions []core.Transaction) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, transactions...)
	return nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishTransactionCreated(_ context.Context, _, transactionID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, transactionID)
	return nil
}

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func ptrFloat(f float64) *float64 { return &f }

func TestIngestRecords(t *testing.T) {
	createdAt := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []normalize.Record{
		{
			ID:        "tx-1",
			Amount:    ptrFloat(-12.99),
			Currency:  "gbp",
			Merchant:  &normalize.RawMerchant{Name: "Netflix"},
			CreatedAt: &createdAt,
		},
		{
			ID:        "tx-2",
			Amount:    ptrFloat(2500),
			Currency:  "GBP",
			Merchant:  &normalize.RawMerchant{Name: "Acme Corp"},
			CreatedAt: &createdAt,
		},
		{
			// No amount at all: skipped, not fatal.
			ID:        "tx-bad",
			CreatedAt: &createdAt,
		},
	}

	storage := &fakeUpserter{}
	publisher := &fakePublisher{}
	service := NewIngestService(storage, publisher, testLogger())

	result, err := service.IngestRecords(context.Background(), "user-1", records)
	if err != nil {
		t.Fatalf("IngestRecords() error = %v", err)
	}
	if result.Ingested != 2 || result.Skipped != 1 {
		t.Errorf("result = %+v, want Ingested 2 Skipped 1", result)
	}
	if len(storage.stored) != 2 {
		t.Fatalf("stored %d transactions, want 2", len(storage.stored))
	}
	if storage.stored[0].MerchantKey != "netflix" || storage.stored[0].Currency != "GBP" {
		t.Errorf("stored[0] = %+v", storage.stored[0])
	}
	if len(publisher.published) != 2 || publisher.published[0] != "tx-1" || publisher.published[1] != "tx-2" {
		t.Errorf("published = %v, want [tx-1 tx-2]", publisher.published)
	}
}

func TestIngestRecordsStorageFailure(t *testing.T) {
	createdAt := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	storage := &fakeUpserter{err: errors.New("disk full")}
	publisher := &fakePublisher{}
	service := NewIngestService(storage, publisher, testLogger())

	_, err := service.IngestRecords(context.Background(), "user-1", []normalize.Record{
		{ID: "tx-1", Amount: ptrFloat(-5), CreatedAt: &createdAt},
	})
	if err == nil {
		t.Fatal("IngestRecords() error = nil, want storage error")
	}
	if len(publisher.published) != 0 {
		t.Errorf("published = %v, want none after storage failure", publisher.published)
	}
}

func TestIngestRecordsPublishFailureNonFatal(t *testing.T) {
	createdAt := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	storage := &fakeUpserter{}
	publisher := &fakePublisher{err: errors.New("broker down")}
	service := NewIngestService(storage, publisher, testLogger())

	result, err := service.IngestRecords(context.Background(), "user-1", []normalize.Record{
		{ID: "tx-1", Amount: ptrFloat(-5), CreatedAt: &createdAt},
	})
	if err != nil {
		t.Fatalf("IngestRecords() error = %v, want nil despite publish failure", err)
	}
	if result.Ingested != 1 {
		t.Errorf("Ingested = %d, want 1", result.Ingested)
	}
}

func TestIngestRecordsWithoutPublisher(t *testing.T) {
	createdAt := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	storage := &fakeUpserter{}
	service := NewIngestService(storage, nil, testLogger())

	result, err := service.IngestRecords(context.Background(), "user-1", []normalize.Record{
		{ID: "tx-1", Amount: ptrFloat(-5), CreatedAt: &createdAt},
	})
	if err != nil {
		t.Fatalf("IngestRecords() error = %v", err)
	}
	if result.Ingested != 1 {
		t.Errorf("Ingested = %d, want 1", result.Ingested)
	}
}

func TestIngestNDJSON(t *testing.T) {
	input := strings.Join([]string{
		`{"id": "tx-1", "amount": -12.99, "currency": "GBP", "merchant": {"name": "Netflix"}, "createdISO": "2024-03-10T12:00:00Z"}`,
		``,
		`{"id": "tx-bad", "createdISO": "2024-03-10T12:00:00Z"}`,
		`{"id": "tx-2", "amountMinor": -450, "currency": "GBP", "merchant": {"name": "Coffee Shop"}, "createdISO": "2024-03-11"}`,
	}, "\n")

	storage := &fakeUpserter{}
	publisher := &fakePublisher{}
	service := NewIngestService(storage, publisher, testLogger())

	result, err := service.IngestNDJSON(context.Background(), "user-1", strings.NewReader(input))
	if err != nil {
		t.Fatalf("IngestNDJSON() error = %v", err)
	}
	if result.Ingested != 2 || result.Skipped != 1 {
		t.Errorf("result = %+v, want Ingested 2 Skipped 1", result)
	}
	if storage.stored[1].Amount != -4.50 {
		t.Errorf("minor-unit amount = %v, want -4.50", storage.stored[1].Amount)
	}
	if len(publisher.published) != 2 {
		t.Errorf("published = %v, want 2 events", publisher.published)
	}
}
