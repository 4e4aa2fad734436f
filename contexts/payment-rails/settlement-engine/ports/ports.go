package ports

import (
	"context"
	"time"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/internal/shared/events"
	"requity/internal/shared/outbox"

	"github.com/shopspring/decimal"
)

// TransferClient is the narrow capability boundary to one ledger network.
// It holds no request-scoped state; every call carries its own address,
// amount and memo. Retry/backoff against the network is the client's own
// concern; the orchestrator treats each call as a single bounded attempt.
type TransferClient interface {
	Family() entities.NetworkFamily
	PayerAddress() string
	SubmitTransfer(ctx context.Context, address string, amount decimal.Decimal, memo string) (string, error)
	QueryBalance(ctx context.Context, address string) (entities.BalanceInfo, error)
	EstimateCost(ctx context.Context) (entities.FeeEstimate, error)
}

// DirectSendInput is a one-recipient send that bypasses the batch machinery.
type DirectSendInput struct {
	Address       string
	Amount        decimal.Decimal
	Memo          string
	CorrelationID string
}

// AttributionInput settles a conversion event at a flat per-source rate.
// PrimaryAddress and SourceAddresses merge into one deduplicated set; a
// recipient named in both is paid once.
type AttributionInput struct {
	PrimaryAddress  string
	SourceAddresses []string
	CorrelationID   string
	Memo            string
}

type SplitRecipientInput struct {
	Address string
	Amount  decimal.Decimal
	Role    string
}

// SplitSettlementInput disburses pre-computed shares that must sum to
// TotalAmount within the engine tolerance.
type SplitSettlementInput struct {
	Recipients    []SplitRecipientInput
	TotalAmount   decimal.Decimal
	CorrelationID string
	Memo          string
}

// SettlementRecord is the persisted audit row for one settlement. It is
// operational telemetry; the returned SettlementResult stays the record of
// truth for callers.
type SettlementRecord struct {
	SettlementID    string
	CorrelationID   string
	Policy          entities.PayoutPolicy
	TotalRequested  decimal.Decimal
	TotalSent       decimal.Decimal
	SuccessCount    int
	TotalRecipients int
	Outcomes        []entities.TransferOutcome
	CreatedAt       time.Time
}

type SettlementRepository interface {
	CreateSettlement(ctx context.Context, record SettlementRecord) error
	GetSettlement(ctx context.Context, settlementID string) (SettlementRecord, error)
	ListSettlements(ctx context.Context, limit int, offset int) ([]SettlementRecord, error)
}

type IdempotencyRecord struct {
	Key             string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

// IdempotencyStore dedupes retried settlement calls by correlation id. A
// replay with the same request hash returns the recorded response; a replay
// with a different hash is a conflict.
type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutRecord(ctx context.Context, record IdempotencyRecord) error
}

type EventEnvelope = events.Envelope

type OutboxMessage = outbox.Message

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
