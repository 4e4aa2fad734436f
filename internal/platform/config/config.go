package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	devnetRPCURL  = "https://api.devnet.solana.com"
	mainnetRPCURL = "https://api.mainnet-beta.solana.com"

	devnetPYUSDMint  = "CXk2AMBfi3TwaEL2468s6zP8xq9NxTXjp9gjMgzeUynM"
	mainnetPYUSDMint = "2b1kV6DkPAnxd5ixfnxCpjxmKwqjjaYmCZfHsFu24GXo"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	// LedgerMode selects the transfer backend: "solana" or "memory".
	LedgerMode       string
	SolanaNetwork    string
	SolanaRPCURL     string
	SolanaPrivateKey string
	PYUSDMint        string

	FlatPayoutAmount decimal.Decimal
	DirectAmountCap  decimal.Decimal
	MaxRecipients    int
	Concurrency      int
	TransferTimeout  time.Duration
	IdempotencyTTL   time.Duration
	DisablePreflight bool

	RateLimitPerMinute  int
	LowBalanceWatermark decimal.Decimal
	WorkerPollInterval  time.Duration
	OutboxBatchSize     int
}

func Load() (Config, error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "requity"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	network := strings.ToLower(strings.TrimSpace(os.Getenv("SOLANA_NETWORK")))
	if network == "" {
		network = "devnet"
	}

	rpcURL := strings.TrimSpace(os.Getenv("SOLANA_RPC_URL"))
	if rpcURL == "" {
		rpcURL = devnetRPCURL
		if network == "mainnet" {
			rpcURL = mainnetRPCURL
		}
	}

	mint := strings.TrimSpace(os.Getenv("PYUSD_MINT"))
	if mint == "" {
		mint = devnetPYUSDMint
		if network == "mainnet" {
			mint = mainnetPYUSDMint
		}
	}

	mode := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_MODE")))
	if mode == "" {
		mode = "solana"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		LedgerMode:       mode,
		SolanaNetwork:    network,
		SolanaRPCURL:     rpcURL,
		SolanaPrivateKey: strings.TrimSpace(os.Getenv("SOLANA_PRIVATE_KEY")),
		PYUSDMint:        mint,

		FlatPayoutAmount: envDecimal("FLAT_PAYOUT_AMOUNT", decimal.NewFromFloat(0.01)),
		DirectAmountCap:  envDecimal("DIRECT_AMOUNT_CAP", decimal.NewFromInt(1000)),
		MaxRecipients:    envInt("MAX_RECIPIENTS", 10),
		Concurrency:      envInt("SETTLEMENT_CONCURRENCY", 10),
		TransferTimeout:  envDuration("TRANSFER_TIMEOUT", 30*time.Second),
		IdempotencyTTL:   envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		DisablePreflight: !envBool("ENABLE_PREFLIGHT", true),

		RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 100),
		LowBalanceWatermark: envDecimal("LOW_BALANCE_WATERMARK", decimal.NewFromInt(1)),
		WorkerPollInterval:  envDuration("WORKER_POLL_INTERVAL", 10*time.Second),
		OutboxBatchSize:     envInt("OUTBOX_BATCH_SIZE", 100),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDecimal(name string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return fallback
	}
	return value
}
