package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/adapters/memory"
	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/ports"
	"requity/internal/shared/events"
)

type capturingPublisher struct {
	published []ports.EventEnvelope
	fail      bool
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event ports.EventEnvelope) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxRelayPublishesPendingAndMarks(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	for _, id := range []string{"evt-1", "evt-2"} {
		err := store.AppendOutbox(ctx, events.Envelope{
			EventID:   id,
			EventType: "settlement.completed",
		})
		if err != nil {
			t.Fatalf("append outbox: %v", err)
		}
	}

	publisher := &capturingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     store,
		Logger:    testLogger(),
	}

	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.published))
	}
	if publisher.published[0].EventID != "evt-1" {
		t.Fatalf("expected append order preserved, got %+v", publisher.published)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected all rows marked published, got %d pending", len(pending))
	}

	// A second pass over an empty outbox is a no-op.
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("idle run once: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("idle pass must not republish, got %d", len(publisher.published))
	}
}

func TestOutboxRelayKeepsRowPendingOnPublishFailure(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.AppendOutbox(ctx, events.Envelope{EventID: "evt-1", EventType: "settlement.completed"})
	if err != nil {
		t.Fatalf("append outbox: %v", err)
	}

	relay := OutboxRelay{
		Outbox:    store,
		Publisher: &capturingPublisher{fail: true},
		Clock:     store,
		Logger:    testLogger(),
	}
	if err := relay.RunOnce(ctx); err == nil {
		t.Fatal("expected publish failure to surface")
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed publish must leave the row pending, got %d", len(pending))
	}
}

func TestBalanceMonitorWarnsBelowWatermark(t *testing.T) {
	ledger := memory.NewLedger(entities.FamilySolana, "payer")
	ledger.SetBalances(decimal.NewFromInt(1), decimal.NewFromFloat(0.5))

	monitor := BalanceMonitor{
		Client:       ledger,
		LowWatermark: decimal.NewFromInt(1),
		Logger:       testLogger(),
	}
	if err := monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
}

func TestBalanceMonitorWithoutClientIsNoOp(t *testing.T) {
	monitor := BalanceMonitor{Logger: testLogger()}
	if err := monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil-client no-op, got %v", err)
	}
}
