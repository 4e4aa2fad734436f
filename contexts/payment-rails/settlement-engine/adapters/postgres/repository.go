package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/domain/errors"
	"requity/contexts/payment-rails/settlement-engine/ports"
	"requity/internal/shared/outbox"
)

type settlementModel struct {
	SettlementID    string          `gorm:"column:settlement_id;primaryKey"`
	CorrelationID   string          `gorm:"column:correlation_id;index"`
	Policy          string          `gorm:"column:policy"`
	TotalRequested  decimal.Decimal `gorm:"column:total_requested;type:numeric(20,6)"`
	TotalSent       decimal.Decimal `gorm:"column:total_sent;type:numeric(20,6)"`
	SuccessCount    int             `gorm:"column:success_count"`
	TotalRecipients int             `gorm:"column:total_recipients"`
	Outcomes        []byte          `gorm:"column:outcomes;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
}

func (settlementModel) TableName() string { return "settlements" }

type idempotencyModel struct {
	Key             string    `gorm:"column:key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload;type:jsonb"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	ExpiresAt       time.Time `gorm:"column:expires_at;index"`
}

func (idempotencyModel) TableName() string { return "settlement_idempotency" }

type outboxModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	EventType   string     `gorm:"column:event_type"`
	Payload     []byte     `gorm:"column:payload;type:jsonb"`
	Status      string     `gorm:"column:status;index"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "settlement_outbox" }

// Repository persists settlements, idempotency records and outbox rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&settlementModel{}, &idempotencyModel{}, &outboxModel{})
}

func (r *Repository) CreateSettlement(ctx context.Context, record ports.SettlementRecord) error {
	outcomes, err := json.Marshal(record.Outcomes)
	if err != nil {
		return err
	}
	model := settlementModel{
		SettlementID:    record.SettlementID,
		CorrelationID:   record.CorrelationID,
		Policy:          string(record.Policy),
		TotalRequested:  record.TotalRequested,
		TotalSent:       record.TotalSent,
		SuccessCount:    record.SuccessCount,
		TotalRecipients: record.TotalRecipients,
		Outcomes:        outcomes,
		CreatedAt:       record.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

func (r *Repository) GetSettlement(ctx context.Context, settlementID string) (ports.SettlementRecord, error) {
	var model settlementModel
	err := r.db.WithContext(ctx).First(&model, "settlement_id = ?", settlementID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SettlementRecord{}, errors.ErrSettlementNotFound
		}
		return ports.SettlementRecord{}, err
	}
	return toSettlementRecord(model)
}

func (r *Repository) ListSettlements(ctx context.Context, limit int, offset int) ([]ports.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var models []settlementModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, err
	}
	records := make([]ports.SettlementRecord, 0, len(models))
	for _, model := range models {
		record, err := toSettlementRecord(model)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Repository) GetRecord(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var model idempotencyModel
	err := r.db.WithContext(ctx).First(&model, "key = ?", key).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	if !model.ExpiresAt.IsZero() && !now.Before(model.ExpiresAt) {
		// Purge the stale row so the follow-up PutRecord can insert a fresh
		// one instead of tripping the primary-key conflict. The expires_at
		// predicate leaves a concurrently refreshed row alone.
		err := r.db.WithContext(ctx).
			Where("key = ? AND expires_at = ?", model.Key, model.ExpiresAt).
			Delete(&idempotencyModel{}).Error
		if err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:             model.Key,
		RequestHash:     model.RequestHash,
		ResponsePayload: model.ResponsePayload,
		ExpiresAt:       model.ExpiresAt,
	}, true, nil
}

func (r *Repository) PutRecord(ctx context.Context, record ports.IdempotencyRecord) error {
	model := idempotencyModel{
		Key:             record.Key,
		RequestHash:     record.RequestHash,
		ResponsePayload: record.ResponsePayload,
		CreatedAt:       time.Now().UTC(),
		ExpiresAt:       record.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	model := outboxModel{
		ID:        envelope.EventID,
		EventType: envelope.EventType,
		Payload:   payload,
		Status:    outbox.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	messages := make([]ports.OutboxMessage, 0, len(models))
	for _, model := range models {
		messages = append(messages, ports.OutboxMessage{
			ID:          model.ID,
			EventType:   model.EventType,
			Payload:     model.Payload,
			Status:      model.Status,
			CreatedAt:   model.CreatedAt,
			PublishedAt: model.PublishedAt,
		})
	}
	return messages, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, id string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": outbox.StatusPublished, "published_at": publishedAt})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.ErrSettlementNotFound
	}
	return nil
}

func toSettlementRecord(model settlementModel) (ports.SettlementRecord, error) {
	record := ports.SettlementRecord{
		SettlementID:    model.SettlementID,
		CorrelationID:   model.CorrelationID,
		Policy:          entities.PayoutPolicy(model.Policy),
		TotalRequested:  model.TotalRequested,
		TotalSent:       model.TotalSent,
		SuccessCount:    model.SuccessCount,
		TotalRecipients: model.TotalRecipients,
		CreatedAt:       model.CreatedAt,
	}
	if len(model.Outcomes) > 0 {
		if err := json.Unmarshal(model.Outcomes, &record.Outcomes); err != nil {
			return ports.SettlementRecord{}, err
		}
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
