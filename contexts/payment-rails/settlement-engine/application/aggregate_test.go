package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
)

func TestAggregateCountsConfirmedOnly(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := []entities.TransferOutcome{
		{Address: solanaAddrA, Amount: decimal.NewFromFloat(0.01), Succeeded: true},
		{Address: solanaAddrB, Amount: decimal.NewFromFloat(0.01), ErrorKind: entities.ErrorKindNetwork},
		{Address: solanaAddrC, Amount: decimal.NewFromFloat(0.01), Succeeded: true},
	}

	result := Aggregate("stl-1", "corr-1", entities.PolicyFlatRate, outcomes, at)

	if result.TotalRecipients != 3 {
		t.Fatalf("expected 3 recipients, got %d", result.TotalRecipients)
	}
	if result.SuccessCount != 2 {
		t.Fatalf("expected 2 successes, got %d", result.SuccessCount)
	}
	if !result.TotalSent.Equal(decimal.NewFromFloat(0.02)) {
		t.Fatalf("expected total sent 0.02, got %s", result.TotalSent)
	}
	if result.Outcomes[1].Address != solanaAddrB {
		t.Fatalf("outcome order changed: %+v", result.Outcomes)
	}
	if !result.SettledAt.Equal(at) {
		t.Fatalf("expected settled at %s, got %s", at, result.SettledAt)
	}
}

func TestAggregateAllFailedIsAValidResult(t *testing.T) {
	outcomes := []entities.TransferOutcome{
		{Address: solanaAddrA, Amount: decimal.NewFromInt(1), ErrorKind: entities.ErrorKindTimeout},
		{Address: solanaAddrB, Amount: decimal.NewFromInt(1), ErrorKind: entities.ErrorKindRejected},
	}

	result := Aggregate("stl-2", "", entities.PolicySplit, outcomes, time.Now())

	if result.SuccessCount != 0 {
		t.Fatalf("expected 0 successes, got %d", result.SuccessCount)
	}
	if !result.TotalSent.IsZero() {
		t.Fatalf("expected zero total sent, got %s", result.TotalSent)
	}
	if result.TotalRecipients != 2 {
		t.Fatalf("expected 2 recipients, got %d", result.TotalRecipients)
	}
}
