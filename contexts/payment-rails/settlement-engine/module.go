package settlementengine

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	httpadapter "requity/contexts/payment-rails/settlement-engine/adapters/http"
	"requity/contexts/payment-rails/settlement-engine/adapters/memory"
	"requity/contexts/payment-rails/settlement-engine/application"
	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Service application.Service
	Store   *memory.Store
	Ledger  *memory.Ledger
}

type Dependencies struct {
	Clients          map[entities.NetworkFamily]ports.TransferClient
	Repository       ports.SettlementRepository
	Idempotency      ports.IdempotencyStore
	Outbox           ports.OutboxWriter
	Clock            ports.Clock
	IDGenerator      ports.IDGenerator
	FlatPayoutAmount decimal.Decimal
	DirectAmountCap  decimal.Decimal
	MaxRecipients    int
	Concurrency      int
	TransferTimeout  time.Duration
	IdempotencyTTL   time.Duration
	DisablePreflight bool
	Logger           *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Clients:          deps.Clients,
		Repo:             deps.Repository,
		Idempotency:      deps.Idempotency,
		Outbox:           deps.Outbox,
		Clock:            deps.Clock,
		IDGen:            deps.IDGenerator,
		FlatPayoutAmount: deps.FlatPayoutAmount,
		DirectAmountCap:  deps.DirectAmountCap,
		MaxRecipients:    deps.MaxRecipients,
		Concurrency:      deps.Concurrency,
		TransferTimeout:  deps.TransferTimeout,
		IdempotencyTTL:   deps.IdempotencyTTL,
		DisablePreflight: deps.DisablePreflight,
		Logger:           deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
		Service: service,
	}
}

// NewInMemoryModule wires the engine against the in-memory store and ledger.
// Used by tests and by local runs without wallet credentials or a database.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	ledger := memory.NewLedger(entities.FamilySolana, "MemoryTreasury1111111111111111111111111111")
	module := NewModule(Dependencies{
		Clients: map[entities.NetworkFamily]ports.TransferClient{
			entities.FamilySolana: ledger,
		},
		Repository:     store,
		Idempotency:    store,
		Outbox:         store,
		Clock:          store,
		IDGenerator:    store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	module.Ledger = ledger
	return module
}
