package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	domainerrors "requity/contexts/payment-rails/settlement-engine/domain/errors"
	"requity/contexts/payment-rails/settlement-engine/ports"

	"github.com/shopspring/decimal"
)

// Service orchestrates attribution settlements: validated request in,
// SettlementResult out. It owns no durable ledger; the external network stays
// the source of truth for whether funds actually moved.
type Service struct {
	Clients     map[entities.NetworkFamily]ports.TransferClient
	Repo        ports.SettlementRepository
	Idempotency ports.IdempotencyStore
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator

	FlatPayoutAmount decimal.Decimal
	DirectAmountCap  decimal.Decimal
	MaxRecipients    int
	Concurrency      int
	TransferTimeout  time.Duration
	IdempotencyTTL   time.Duration
	DisablePreflight bool
	Logger           *slog.Logger
}

// SendDirect pays a single recipient, bypassing the batch state machine. The
// result still carries a one-element outcome list so callers read every
// settlement shape the same way.
func (s Service) SendDirect(ctx context.Context, input ports.DirectSendInput) (entities.SettlementResult, bool, error) {
	req, err := s.validateDirect(input)
	if err != nil {
		return entities.SettlementResult{}, false, err
	}
	return s.settle(ctx, entities.PolicyDirect, req, NormalizeSplit(req))
}

// SettleAttribution settles one conversion event at the flat per-source rate.
func (s Service) SettleAttribution(ctx context.Context, input ports.AttributionInput) (entities.SettlementResult, bool, error) {
	req, err := s.validateAttribution(input)
	if err != nil {
		return entities.SettlementResult{}, false, err
	}
	return s.settle(ctx, entities.PolicyFlatRate, req, NormalizeFlatRate(req, s.flatPayoutAmount()))
}

// SettleSplit disburses pre-computed revenue shares.
func (s Service) SettleSplit(ctx context.Context, input ports.SplitSettlementInput) (entities.SettlementResult, bool, error) {
	req, err := s.validateSplit(input)
	if err != nil {
		return entities.SettlementResult{}, false, err
	}
	return s.settle(ctx, entities.PolicySplit, req, NormalizeSplit(req))
}

// TreasuryBalance reports the payer wallet address and its position on the
// primary network.
func (s Service) TreasuryBalance(ctx context.Context) (string, entities.BalanceInfo, error) {
	client, err := s.primaryClient()
	if err != nil {
		return "", entities.BalanceInfo{}, err
	}
	balance, err := client.QueryBalance(ctx, client.PayerAddress())
	if err != nil {
		return "", entities.BalanceInfo{}, err
	}
	return client.PayerAddress(), balance, nil
}

// EstimateCost reports the per-transfer network fee on the primary network.
func (s Service) EstimateCost(ctx context.Context) (entities.FeeEstimate, error) {
	client, err := s.primaryClient()
	if err != nil {
		return entities.FeeEstimate{}, err
	}
	return client.EstimateCost(ctx)
}

func (s Service) GetSettlement(ctx context.Context, settlementID string) (ports.SettlementRecord, error) {
	if s.Repo == nil {
		return ports.SettlementRecord{}, domainerrors.ErrSettlementNotFound
	}
	return s.Repo.GetSettlement(ctx, strings.TrimSpace(settlementID))
}

func (s Service) ListSettlements(ctx context.Context, limit int, offset int) ([]ports.SettlementRecord, error) {
	if s.Repo == nil {
		return []ports.SettlementRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListSettlements(ctx, limit, offset)
}

// settle runs the shared pipeline: client binding check, correlation-id
// replay, pre-flight feasibility, fan-out, aggregation, audit + outbox.
// Per-recipient transfer failures never surface as an error here, they are
// outcomes; only validation-class and pre-flight problems abort the call.
func (s Service) settle(
	ctx context.Context,
	policy entities.PayoutPolicy,
	req entities.PayoutRequest,
	set entities.NormalizedRecipientSet,
) (entities.SettlementResult, bool, error) {
	logger := ResolveLogger(s.Logger)

	if len(s.Clients) == 0 {
		return entities.SettlementResult{}, false, domainerrors.ErrConfigurationMissing
	}
	for _, family := range set.Families() {
		if _, ok := s.Clients[family]; !ok {
			return entities.SettlementResult{}, false,
				fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedNetwork, family)
		}
	}

	now := s.now()
	key := strings.TrimSpace(req.CorrelationID)
	var requestHash string
	if key != "" && s.Idempotency != nil {
		requestHash = hashSettlementPayload(policy, set)
		record, found, err := s.Idempotency.GetRecord(ctx, key, now)
		if err != nil {
			return entities.SettlementResult{}, false, err
		}
		if found {
			if record.RequestHash != requestHash {
				return entities.SettlementResult{}, false, domainerrors.ErrIdempotencyConflict
			}
			var replayed entities.SettlementResult
			if err := json.Unmarshal(record.ResponsePayload, &replayed); err != nil {
				return entities.SettlementResult{}, false, err
			}
			logger.Info("settlement replayed from correlation id",
				"event", "settlement_replayed",
				"module", "payment-rails/settlement-engine",
				"layer", "application",
				"correlation_id", key,
				"settlement_id", replayed.SettlementID,
			)
			return replayed, true, nil
		}
	}

	// A single direct transfer clears or fails on its own; only batches get
	// the feasibility gate.
	if policy != entities.PolicyDirect && !s.DisablePreflight {
		if err := s.preflight(ctx, set); err != nil {
			return entities.SettlementResult{}, false, err
		}
	}

	outcomes := s.runTransfers(ctx, set, req.Memo)

	settlementID, err := s.newID(ctx)
	if err != nil {
		// Funds may already have moved; losing the result now would be worse
		// than an ugly id.
		logger.Error("settlement id generation failed",
			"event", "settlement_id_failed",
			"module", "payment-rails/settlement-engine",
			"layer", "application",
			"error", err.Error(),
		)
		settlementID = fmt.Sprintf("settlement-%d", now.UnixNano())
	}
	result := Aggregate(settlementID, key, policy, outcomes, s.now())

	s.recordSettlement(ctx, req, result)
	s.appendSettlementOutbox(ctx, result)

	if key != "" && s.Idempotency != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			err = s.Idempotency.PutRecord(ctx, ports.IdempotencyRecord{
				Key:             key,
				RequestHash:     requestHash,
				ResponsePayload: payload,
				ExpiresAt:       now.Add(s.idempotencyTTL()),
			})
		}
		if err != nil {
			// The settlement itself stands; a failed replay cache only costs
			// dedup coverage for this correlation id.
			logger.Error("settlement idempotency record failed",
				"event", "settlement_idempotency_put_failed",
				"module", "payment-rails/settlement-engine",
				"layer", "application",
				"correlation_id", key,
				"error", err.Error(),
			)
		}
	}

	logger.Info("settlement completed",
		"event", "settlement_completed",
		"module", "payment-rails/settlement-engine",
		"layer", "application",
		"settlement_id", result.SettlementID,
		"correlation_id", result.CorrelationID,
		"policy", string(result.Policy),
		"success_count", result.SuccessCount,
		"total_recipients", result.TotalRecipients,
		"total_sent", result.TotalSent.String(),
	)
	return result, false, nil
}

func (s Service) recordSettlement(ctx context.Context, req entities.PayoutRequest, result entities.SettlementResult) {
	if s.Repo == nil {
		return
	}
	totalRequested := req.DeclaredTotal
	if totalRequested.IsZero() {
		totalRequested = result.TotalSent
		for _, o := range result.Outcomes {
			if !o.Succeeded {
				totalRequested = totalRequested.Add(o.Amount)
			}
		}
	}
	err := s.Repo.CreateSettlement(ctx, ports.SettlementRecord{
		SettlementID:    result.SettlementID,
		CorrelationID:   result.CorrelationID,
		Policy:          result.Policy,
		TotalRequested:  totalRequested,
		TotalSent:       result.TotalSent,
		SuccessCount:    result.SuccessCount,
		TotalRecipients: result.TotalRecipients,
		Outcomes:        result.Outcomes,
		CreatedAt:       result.SettledAt,
	})
	if err != nil {
		// Audit row only; the caller still gets the full result.
		ResolveLogger(s.Logger).Error("settlement audit write failed",
			"event", "settlement_audit_write_failed",
			"module", "payment-rails/settlement-engine",
			"layer", "application",
			"settlement_id", result.SettlementID,
			"error", err.Error(),
		)
	}
}

func (s Service) primaryClient() (ports.TransferClient, error) {
	if client, ok := s.Clients[entities.FamilySolana]; ok {
		return client, nil
	}
	for _, client := range s.Clients {
		return client, nil
	}
	return nil, domainerrors.ErrConfigurationMissing
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s Service) newID(ctx context.Context) (string, error) {
	if s.IDGen == nil {
		return "", domainerrors.ErrEngineFault
	}
	return s.IDGen.NewID(ctx)
}

func (s Service) flatPayoutAmount() decimal.Decimal {
	if s.FlatPayoutAmount.IsPositive() {
		return s.FlatPayoutAmount
	}
	return decimal.NewFromFloat(0.01)
}

func (s Service) directAmountCap() decimal.Decimal {
	if s.DirectAmountCap.IsPositive() {
		return s.DirectAmountCap
	}
	return defaultDirectAmountCap
}

func (s Service) maxRecipients() int {
	if s.MaxRecipients > 0 {
		return s.MaxRecipients
	}
	return defaultMaxRecipients
}

func (s Service) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func hashSettlementPayload(policy entities.PayoutPolicy, set entities.NormalizedRecipientSet) string {
	entries := make([]map[string]string, 0, len(set.Recipients))
	for _, r := range set.Recipients {
		entries = append(entries, map[string]string{
			"key":    r.Key,
			"amount": r.Amount.String(),
		})
	}
	raw, _ := json.Marshal(map[string]any{
		"policy":     string(policy),
		"recipients": entries,
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
