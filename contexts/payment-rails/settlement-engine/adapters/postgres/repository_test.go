package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"requity/contexts/payment-rails/settlement-engine/ports"
	"requity/internal/platform/db"
)

// newTestRepository connects to the database named by TEST_POSTGRES_DSN.
// The suite is skipped when no database is available.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	conn, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	repo := NewRepository(conn.DB)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestRepositoryIdempotencyExpiryThenReuse(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	key := fmt.Sprintf("conv-%s", uuid.NewString())

	err := repo.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             key,
		RequestHash:     "hash-first",
		ResponsePayload: []byte(`{"settlementId":"stl-1"}`),
		ExpiresAt:       now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("put record: %v", err)
	}

	record, found, err := repo.GetRecord(ctx, key, now)
	if err != nil || !found {
		t.Fatalf("expected live record, found=%v err=%v", found, err)
	}
	if record.RequestHash != "hash-first" {
		t.Fatalf("expected first hash, got %q", record.RequestHash)
	}

	// Past the TTL the record reads as absent and the row is purged, so the
	// key accepts a fresh record instead of surfacing a key conflict.
	if _, found, err := repo.GetRecord(ctx, key, now.Add(2*time.Hour)); err != nil || found {
		t.Fatalf("expected expired record to be absent, found=%v err=%v", found, err)
	}

	err = repo.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             key,
		RequestHash:     "hash-second",
		ResponsePayload: []byte(`{"settlementId":"stl-2"}`),
		ExpiresAt:       now.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put record after expiry: %v", err)
	}

	record, found, err = repo.GetRecord(ctx, key, now.Add(2*time.Hour))
	if err != nil || !found {
		t.Fatalf("expected refreshed record, found=%v err=%v", found, err)
	}
	if record.RequestHash != "hash-second" {
		t.Fatalf("expected refreshed hash, got %q", record.RequestHash)
	}
}
