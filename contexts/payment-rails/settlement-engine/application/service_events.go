package application

import (
	"context"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/ports"
)

const sourceService = "settlement-engine"

// appendSettlementOutbox emits settlement.completed for downstream consumers
// (analytics, reconciliation). Best-effort: the settlement stands even when
// the outbox write fails.
func (s Service) appendSettlementOutbox(ctx context.Context, result entities.SettlementResult) {
	if s.Outbox == nil {
		return
	}
	logger := ResolveLogger(s.Logger)

	eventID, err := s.newID(ctx)
	if err != nil {
		logger.Error("settlement event id generation failed",
			"event", "settlement_outbox_append_failed",
			"module", "payment-rails/settlement-engine",
			"layer", "application",
			"settlement_id", result.SettlementID,
			"error", err.Error(),
		)
		return
	}

	outcomes := make([]map[string]any, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		entry := map[string]any{
			"address":   o.Address,
			"family":    string(o.Family),
			"amount":    o.Amount.String(),
			"succeeded": o.Succeeded,
		}
		if o.TransactionReference != "" {
			entry["tx_reference"] = o.TransactionReference
		}
		if o.ErrorKind != entities.ErrorKindNone {
			entry["error_kind"] = string(o.ErrorKind)
		}
		outcomes = append(outcomes, entry)
	}

	err = s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:        eventID,
		EventType:      "settlement.completed",
		SourceService:  sourceService,
		OccurredAtUTC:  result.SettledAt,
		CorrelationID:  result.CorrelationID,
		EntityType:     "settlement",
		EntityID:       result.SettlementID,
		PayloadVersion: 1,
		Payload: map[string]any{
			"settlement_id":    result.SettlementID,
			"policy":           string(result.Policy),
			"success_count":    result.SuccessCount,
			"total_recipients": result.TotalRecipients,
			"total_sent":       result.TotalSent.String(),
			"outcomes":         outcomes,
		},
	})
	if err != nil {
		logger.Error("settlement outbox append failed",
			"event", "settlement_outbox_append_failed",
			"module", "payment-rails/settlement-engine",
			"layer", "application",
			"settlement_id", result.SettlementID,
			"error", err.Error(),
		)
	}
}
