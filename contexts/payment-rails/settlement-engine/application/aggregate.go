package application

import (
	"time"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"

	"github.com/shopspring/decimal"
)

// Aggregate reduces per-recipient outcomes into a settlement summary. Pure:
// outcome order is preserved as given, TotalSent counts confirmed outcomes
// only, and an all-failed settlement is a valid result rather than an error.
func Aggregate(
	settlementID string,
	correlationID string,
	policy entities.PayoutPolicy,
	outcomes []entities.TransferOutcome,
	settledAt time.Time,
) entities.SettlementResult {
	result := entities.SettlementResult{
		SettlementID:    settlementID,
		CorrelationID:   correlationID,
		Policy:          policy,
		Outcomes:        outcomes,
		TotalSent:       decimal.Zero,
		TotalRecipients: len(outcomes),
		SettledAt:       settledAt.UTC(),
	}
	for _, o := range outcomes {
		if o.Succeeded {
			result.SuccessCount++
			result.TotalSent = result.TotalSent.Add(o.Amount)
		}
	}
	return result
}
