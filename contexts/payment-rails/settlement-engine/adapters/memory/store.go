package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"requity/contexts/payment-rails/settlement-engine/domain/errors"
	"requity/contexts/payment-rails/settlement-engine/ports"
	"requity/internal/shared/outbox"
)

// Store is an in-memory settlement store for tests and local runs.
type Store struct {
	mu          sync.RWMutex
	settlements map[string]ports.SettlementRecord
	idempotency map[string]ports.IdempotencyRecord
	outbox      []ports.OutboxMessage
}

func NewStore() *Store {
	return &Store{
		settlements: map[string]ports.SettlementRecord{},
		idempotency: map[string]ports.IdempotencyRecord{},
	}
}

func (s *Store) CreateSettlement(_ context.Context, record ports.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(record.SettlementID)
	if id == "" {
		return errors.ErrEngineFault
	}
	if _, exists := s.settlements[id]; exists {
		return errors.ErrIdempotencyConflict
	}
	s.settlements[id] = record
	return nil
}

func (s *Store) GetSettlement(_ context.Context, settlementID string) (ports.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.settlements[strings.TrimSpace(settlementID)]
	if !ok {
		return ports.SettlementRecord{}, errors.ErrSettlementNotFound
	}
	return record, nil
}

func (s *Store) ListSettlements(_ context.Context, limit int, offset int) ([]ports.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]ports.SettlementRecord, 0, len(s.settlements))
	for _, record := range s.settlements {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if offset >= len(records) {
		return []ports.SettlementRecord{}, nil
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[strings.TrimSpace(key)]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt) {
		delete(s.idempotency, strings.TrimSpace(key))
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	if key == "" {
		return errors.ErrEngineFault
	}
	s.idempotency[key] = record
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(envelope.EventID)
	if id == "" {
		id = uuid.NewString()
	}
	s.outbox = append(s.outbox, ports.OutboxMessage{
		ID:        id,
		EventType: envelope.EventType,
		Payload:   payload,
		Status:    outbox.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]ports.OutboxMessage, 0, limit)
	for _, message := range s.outbox {
		if message.Status != outbox.StatusPending {
			continue
		}
		pending = append(pending, message)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, id string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID != id {
			continue
		}
		s.outbox[i].Status = outbox.StatusPublished
		at := publishedAt
		s.outbox[i].PublishedAt = &at
		return nil
	}
	return errors.ErrSettlementNotFound
}

// OutboxMessages returns a snapshot of every outbox row, for tests.
func (s *Store) OutboxMessages() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]ports.OutboxMessage, len(s.outbox))
	copy(snapshot, s.outbox)
	return snapshot
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
