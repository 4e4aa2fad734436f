package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	settlementengine "requity/contexts/payment-rails/settlement-engine"
	"requity/contexts/payment-rails/settlement-engine/adapters/memory"
	postgresadapter "requity/contexts/payment-rails/settlement-engine/adapters/postgres"
	workerapp "requity/contexts/payment-rails/settlement-engine/application/workers"
	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/ports"
	solanaclient "requity/contexts/payment-rails/transfer-gateway/solana"
	"requity/internal/platform/config"
	"requity/internal/platform/db"
	"requity/internal/platform/httpserver"
	"requity/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	monitor      *workerapp.BalanceMonitor
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	clients, degradedReason, err := buildClients(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := settlementengine.Dependencies{
		Clients:          clients,
		FlatPayoutAmount: cfg.FlatPayoutAmount,
		DirectAmountCap:  cfg.DirectAmountCap,
		MaxRecipients:    cfg.MaxRecipients,
		Concurrency:      cfg.Concurrency,
		TransferTimeout:  cfg.TransferTimeout,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		DisablePreflight: cfg.DisablePreflight,
		Logger:           logger,
	}

	var pg *db.Postgres
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		pg, err = db.Connect(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB)
		if err := repo.AutoMigrate(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate settlement schema: %w", err)
		}
		deps.Repository = repo
		deps.Idempotency = repo
		deps.Outbox = repo
		deps.Clock = postgresadapter.SystemClock{}
		deps.IDGenerator = postgresadapter.UUIDGenerator{}
	} else {
		store := memory.NewStore()
		deps.Repository = store
		deps.Idempotency = store
		deps.Outbox = store
		deps.Clock = store
		deps.IDGenerator = store
		logger.Warn("running without a database, settlement audit is in-memory",
			"event", "bootstrap_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	module := settlementengine.NewModule(deps)
	server := httpserver.New(module, httpserver.Options{
		Addr:               normalizeAddr(cfg.HTTPPort),
		ServiceName:        cfg.ServiceName,
		DegradedReason:     degradedReason,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required for the worker")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(pg.DB)
	if err := repo.AutoMigrate(); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("migrate settlement schema: %w", err)
	}

	bus := messaging.NewBus(logger)

	app := &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: bus,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}

	clients, _, err := buildClients(cfg, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	if client, ok := clients[entities.FamilySolana]; ok {
		app.monitor = &workerapp.BalanceMonitor{
			Client:       client,
			LowWatermark: cfg.LowBalanceWatermark,
			Logger:       logger,
		}
	}
	return app, nil
}

// buildClients binds transfer clients per network family. Missing wallet
// credentials degrade the service rather than fail the build.
func buildClients(cfg config.Config, logger *slog.Logger) (map[entities.NetworkFamily]ports.TransferClient, string, error) {
	switch cfg.LedgerMode {
	case "memory":
		ledger := memory.NewLedger(entities.FamilySolana, "MemoryTreasury1111111111111111111111111111")
		return map[entities.NetworkFamily]ports.TransferClient{
			entities.FamilySolana: ledger,
		}, "", nil
	case "solana":
		if cfg.SolanaPrivateKey == "" {
			logger.Warn("wallet credentials not configured, settlement disabled",
				"event", "bootstrap_wallet_missing",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"network", cfg.SolanaNetwork,
			)
			return map[entities.NetworkFamily]ports.TransferClient{}, "wallet credentials not configured", nil
		}
		client, err := solanaclient.NewClient(solanaclient.Config{
			RPCURL:     cfg.SolanaRPCURL,
			PrivateKey: cfg.SolanaPrivateKey,
			Mint:       cfg.PYUSDMint,
			Logger:     logger,
		})
		if err != nil {
			return nil, "", err
		}
		return map[entities.NetworkFamily]ports.TransferClient{
			entities.FamilySolana: client,
		}, "", nil
	default:
		return nil, "", fmt.Errorf("unknown LEDGER_MODE %q", cfg.LedgerMode)
	}
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		if w.monitor != nil {
			// Balance checks are advisory; a failed probe never stops the
			// relay loop.
			_ = w.monitor.RunOnce(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
