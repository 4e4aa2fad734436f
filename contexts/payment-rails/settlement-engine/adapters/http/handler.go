package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/application"
	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/ports"
	httptransport "requity/contexts/payment-rails/settlement-engine/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) SendDirectHandler(
	ctx context.Context,
	req httptransport.DirectSendRequest,
) (httptransport.SettlementResultDTO, error) {
	result, replayed, err := h.Service.SendDirect(ctx, ports.DirectSendInput{
		Address:       req.RecipientAddress,
		Amount:        decimal.NewFromFloat(req.Amount),
		Memo:          req.Memo,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return httptransport.SettlementResultDTO{}, err
	}
	return toResultDTO(result, replayed), nil
}

func (h Handler) SettleAttributionHandler(
	ctx context.Context,
	req httptransport.AttributionRequest,
) (httptransport.SettlementResultDTO, error) {
	result, replayed, err := h.Service.SettleAttribution(ctx, ports.AttributionInput{
		PrimaryAddress:  req.PrimaryID,
		SourceAddresses: req.SourceAddresses,
		CorrelationID:   req.CorrelationID,
		Memo:            req.Memo,
	})
	if err != nil {
		return httptransport.SettlementResultDTO{}, err
	}
	return toResultDTO(result, replayed), nil
}

func (h Handler) SettleSplitHandler(
	ctx context.Context,
	req httptransport.SplitRequest,
) (httptransport.SettlementResultDTO, error) {
	recipients := make([]ports.SplitRecipientInput, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		recipients = append(recipients, ports.SplitRecipientInput{
			Address: recipient.Address,
			Amount:  decimal.NewFromFloat(recipient.Amount),
			Role:    recipient.Role,
		})
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = req.ReferralID
	}
	result, replayed, err := h.Service.SettleSplit(ctx, ports.SplitSettlementInput{
		Recipients:    recipients,
		TotalAmount:   decimal.NewFromFloat(req.TotalAmount),
		CorrelationID: correlationID,
		Memo:          req.Memo,
	})
	if err != nil {
		return httptransport.SettlementResultDTO{}, err
	}
	return toResultDTO(result, replayed), nil
}

func (h Handler) TreasuryBalanceHandler(ctx context.Context) (httptransport.BalanceDTO, error) {
	address, balance, err := h.Service.TreasuryBalance(ctx)
	if err != nil {
		return httptransport.BalanceDTO{}, err
	}
	return httptransport.BalanceDTO{
		Address:       address,
		NativeBalance: balance.Native.InexactFloat64(),
		TokenBalance:  balance.Token.InexactFloat64(),
	}, nil
}

func (h Handler) EstimateCostHandler(ctx context.Context) (httptransport.FeeEstimateDTO, error) {
	estimate, err := h.Service.EstimateCost(ctx)
	if err != nil {
		return httptransport.FeeEstimateDTO{}, err
	}
	return httptransport.FeeEstimateDTO{
		PerTransferFee: estimate.PerTransferFee.InexactFloat64(),
		Currency:       estimate.Currency,
	}, nil
}

func (h Handler) GetSettlementHandler(
	ctx context.Context,
	settlementID string,
) (httptransport.SettlementResultDTO, error) {
	record, err := h.Service.GetSettlement(ctx, settlementID)
	if err != nil {
		return httptransport.SettlementResultDTO{}, err
	}
	return recordToResultDTO(record), nil
}

func (h Handler) ListSettlementsHandler(
	ctx context.Context,
	limit int,
	offset int,
) ([]httptransport.SettlementResultDTO, error) {
	records, err := h.Service.ListSettlements(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]httptransport.SettlementResultDTO, 0, len(records))
	for _, record := range records {
		items = append(items, recordToResultDTO(record))
	}
	return items, nil
}

func toResultDTO(result entities.SettlementResult, replayed bool) httptransport.SettlementResultDTO {
	return httptransport.SettlementResultDTO{
		SettlementID:    result.SettlementID,
		CorrelationID:   result.CorrelationID,
		Policy:          string(result.Policy),
		Outcomes:        toOutcomeDTOs(result.Outcomes),
		TotalSent:       result.TotalSent.InexactFloat64(),
		SuccessCount:    result.SuccessCount,
		TotalRecipients: result.TotalRecipients,
		Replayed:        replayed,
		SettledAt:       result.SettledAt.UTC().Format(time.RFC3339),
	}
}

func recordToResultDTO(record ports.SettlementRecord) httptransport.SettlementResultDTO {
	return httptransport.SettlementResultDTO{
		SettlementID:    record.SettlementID,
		CorrelationID:   record.CorrelationID,
		Policy:          string(record.Policy),
		Outcomes:        toOutcomeDTOs(record.Outcomes),
		TotalSent:       record.TotalSent.InexactFloat64(),
		SuccessCount:    record.SuccessCount,
		TotalRecipients: record.TotalRecipients,
		SettledAt:       record.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toOutcomeDTOs(outcomes []entities.TransferOutcome) []httptransport.TransferOutcomeDTO {
	items := make([]httptransport.TransferOutcomeDTO, 0, len(outcomes))
	for _, outcome := range outcomes {
		items = append(items, httptransport.TransferOutcomeDTO{
			Address:       outcome.Address,
			Family:        string(outcome.Family),
			Amount:        outcome.Amount.InexactFloat64(),
			Succeeded:     outcome.Succeeded,
			TransactionID: outcome.TransactionReference,
			ErrorKind:     string(outcome.ErrorKind),
			ErrorDetail:   outcome.ErrorMessage,
		})
	}
	return items
}
