package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domainerrors "requity/contexts/payment-rails/settlement-engine/domain/errors"
	"requity/contexts/payment-rails/settlement-engine/ports"
	"requity/internal/shared/events"
	"requity/internal/shared/outbox"
)

func TestStoreSettlementRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	record := ports.SettlementRecord{
		SettlementID:    "stl-1",
		CorrelationID:   "conv-1",
		TotalRequested:  decimal.NewFromInt(1),
		TotalSent:       decimal.NewFromInt(1),
		SuccessCount:    1,
		TotalRecipients: 1,
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.CreateSettlement(ctx, record); err != nil {
		t.Fatalf("create settlement: %v", err)
	}
	if err := store.CreateSettlement(ctx, record); !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	got, err := store.GetSettlement(ctx, "stl-1")
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if got.CorrelationID != "conv-1" {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := store.GetSettlement(ctx, "missing"); !errors.Is(err, domainerrors.ErrSettlementNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreListSettlementsNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		err := store.CreateSettlement(ctx, ports.SettlementRecord{
			SettlementID: string(rune('a' + i)),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create settlement %d: %v", i, err)
		}
	}

	records, err := store.ListSettlements(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list settlements: %v", err)
	}
	if len(records) != 2 || records[0].SettlementID != "c" || records[1].SettlementID != "b" {
		t.Fatalf("expected newest first with limit, got %+v", records)
	}

	offsetRecords, err := store.ListSettlements(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list with offset: %v", err)
	}
	if len(offsetRecords) != 1 || offsetRecords[0].SettlementID != "a" {
		t.Fatalf("expected offset page with oldest, got %+v", offsetRecords)
	}
}

func TestStoreIdempotencyExpiry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.PutRecord(ctx, ports.IdempotencyRecord{
		Key:         "conv-1",
		RequestHash: "hash",
		ExpiresAt:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("put record: %v", err)
	}

	if _, found, _ := store.GetRecord(ctx, "conv-1", now); !found {
		t.Fatal("expected record before expiry")
	}
	if _, found, _ := store.GetRecord(ctx, "conv-1", now.Add(2*time.Hour)); found {
		t.Fatal("expected record to expire")
	}
	// Expired records are dropped for good.
	if _, found, _ := store.GetRecord(ctx, "conv-1", now); found {
		t.Fatal("expected expired record to stay gone")
	}

	// The key is reusable once expired: a fresh record replaces the old one.
	err = store.PutRecord(ctx, ports.IdempotencyRecord{
		Key:         "conv-1",
		RequestHash: "hash-next",
		ExpiresAt:   now.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put record after expiry: %v", err)
	}
	record, found, _ := store.GetRecord(ctx, "conv-1", now.Add(2*time.Hour))
	if !found {
		t.Fatal("expected refreshed record")
	}
	if record.RequestHash != "hash-next" {
		t.Fatalf("expected refreshed hash, got %q", record.RequestHash)
	}
}

func TestStoreOutboxLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.AppendOutbox(ctx, events.Envelope{
		EventID:   "evt-1",
		EventType: "settlement.completed",
	})
	if err != nil {
		t.Fatalf("append outbox: %v", err)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Status != outbox.StatusPending {
		t.Fatalf("expected one pending message, got %+v", pending)
	}

	if err := store.MarkOutboxPublished(ctx, "evt-1", time.Now().UTC()); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	pending, err = store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending after publish: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %+v", pending)
	}

	if err := store.MarkOutboxPublished(ctx, "missing", time.Now().UTC()); !errors.Is(err, domainerrors.ErrSettlementNotFound) {
		t.Fatalf("expected not found for unknown outbox id, got %v", err)
	}
}

func TestLedgerScriptedFailures(t *testing.T) {
	ledger := NewLedger("solana", "payer")
	ledger.FailAddress("bad", errors.New("boom"))

	if _, err := ledger.SubmitTransfer(context.Background(), "bad", decimal.NewFromInt(1), ""); err == nil {
		t.Fatal("expected scripted failure")
	}
	ref, err := ledger.SubmitTransfer(context.Background(), "good", decimal.NewFromInt(1), "")
	if err != nil || ref == "" {
		t.Fatalf("expected confirmed transfer, got ref=%q err=%v", ref, err)
	}
	if got := len(ledger.Submissions()); got != 1 {
		t.Fatalf("failed transfers must not be recorded, got %d", got)
	}
}
