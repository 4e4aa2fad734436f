package workers

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/application"
	"requity/contexts/payment-rails/settlement-engine/ports"
)

// BalanceMonitor samples the treasury balance and warns when the token
// balance drops under the configured watermark.
type BalanceMonitor struct {
	Client       ports.TransferClient
	LowWatermark decimal.Decimal
	Logger       *slog.Logger
}

func (m BalanceMonitor) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(m.Logger)
	if m.Client == nil {
		return nil
	}

	balance, err := m.Client.QueryBalance(ctx, m.Client.PayerAddress())
	if err != nil {
		logger.Warn("treasury balance check failed",
			"event", "treasury_balance_check_failed",
			"module", "payment-rails/settlement-engine",
			"layer", "worker",
			"family", string(m.Client.Family()),
			"error", err.Error(),
		)
		return err
	}

	logger.Info("treasury balance sampled",
		"event", "treasury_balance_sampled",
		"module", "payment-rails/settlement-engine",
		"layer", "worker",
		"family", string(m.Client.Family()),
		"native_balance", balance.Native.String(),
		"token_balance", balance.Token.String(),
	)

	if m.LowWatermark.IsPositive() && balance.Token.LessThan(m.LowWatermark) {
		logger.Warn("treasury balance low",
			"event", "treasury_balance_low",
			"module", "payment-rails/settlement-engine",
			"layer", "worker",
			"token_balance", balance.Token.String(),
			"low_watermark", m.LowWatermark.String(),
		)
	}
	return nil
}
