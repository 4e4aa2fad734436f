package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	domainerrors "requity/contexts/payment-rails/settlement-engine/domain/errors"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency     = 10
	defaultTransferTimeout = 30 * time.Second
)

// runTransfers fans the normalized set out to the ledger. Each recipient is
// causally independent, so submissions run concurrently under a bounded
// worker limit; outcome slot i belongs to exactly one goroutine, which keeps
// the result in normalization order without locking.
func (s Service) runTransfers(ctx context.Context, set entities.NormalizedRecipientSet, memo string) []entities.TransferOutcome {
	outcomes := make([]entities.TransferOutcome, len(set.Recipients))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency())
	for i, recipient := range set.Recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			outcomes[i] = s.submitOne(ctx, recipient, memo)
			return nil
		})
	}
	// Workers never return errors; failures are recorded per outcome so no
	// recipient blocks another.
	_ = g.Wait()
	return outcomes
}

// submitOne drives one recipient through Pending -> Submitted ->
// {Confirmed, Failed}. A transfer that outlives its deadline keeps running
// detached: the ledger remains the source of truth and the caller reconciles
// later via balance/transaction lookups.
func (s Service) submitOne(ctx context.Context, r entities.NormalizedRecipient, memo string) entities.TransferOutcome {
	logger := ResolveLogger(s.Logger)
	outcome := entities.TransferOutcome{
		Address: r.Address,
		Family:  r.Family,
		Amount:  r.Amount,
	}

	client, ok := s.Clients[r.Family]
	if !ok {
		// Family binding is checked before any submission; reaching this
		// branch means the client map mutated mid-call.
		outcome.ErrorKind = entities.ErrorKindRejected
		outcome.ErrorMessage = domainerrors.ErrUnsupportedNetwork.Error()
		return outcome
	}

	deadline, cancel := context.WithTimeout(ctx, s.transferTimeout())
	defer cancel()

	type submitResult struct {
		ref string
		err error
	}
	done := make(chan submitResult, 1)
	go func() {
		ref, err := client.SubmitTransfer(context.WithoutCancel(ctx), r.Address, r.Amount, memo)
		done <- submitResult{ref: ref, err: err}
	}()

	select {
	case <-deadline.Done():
		outcome.ErrorKind = entities.ErrorKindTimeout
		outcome.ErrorMessage = "transfer deadline exceeded"
	case res := <-done:
		if res.err != nil {
			outcome.ErrorKind = classifyTransferError(res.err)
			outcome.ErrorMessage = res.err.Error()
		} else {
			outcome.Succeeded = true
			outcome.TransactionReference = res.ref
		}
	}

	if outcome.Succeeded {
		logger.Info("transfer confirmed",
			"event", "settlement_transfer_confirmed",
			"module", "payment-rails/settlement-engine",
			"layer", "application",
			"address", r.Address,
			"family", string(r.Family),
			"amount", r.Amount.String(),
			"tx_reference", outcome.TransactionReference,
		)
	} else {
		logger.Warn("transfer failed",
			"event", "settlement_transfer_failed",
			"module", "payment-rails/settlement-engine",
			"layer", "application",
			"address", r.Address,
			"family", string(r.Family),
			"amount", r.Amount.String(),
			"error_kind", string(outcome.ErrorKind),
			"error", outcome.ErrorMessage,
		)
	}
	return outcome
}

// preflight aborts the whole batch before any transfer when the treasury
// foreseeably cannot cover recipients plus fees, so a settlement is never
// left half-funded by a predictable shortfall. Adapter glitches during the
// check do not block settlement; per-transfer errors will surface on their
// own.
func (s Service) preflight(ctx context.Context, set entities.NormalizedRecipientSet) error {
	logger := ResolveLogger(s.Logger)

	totals := make(map[entities.NetworkFamily]decimal.Decimal, 2)
	counts := make(map[entities.NetworkFamily]int, 2)
	for _, r := range set.Recipients {
		totals[r.Family] = totals[r.Family].Add(r.Amount)
		counts[r.Family]++
	}

	for _, family := range set.Families() {
		client := s.Clients[family]
		balance, err := client.QueryBalance(ctx, client.PayerAddress())
		if err != nil {
			logger.Warn("preflight balance query failed, proceeding without gate",
				"event", "settlement_preflight_skipped",
				"module", "payment-rails/settlement-engine",
				"layer", "application",
				"family", string(family),
				"error", err.Error(),
			)
			continue
		}
		estimate, err := client.EstimateCost(ctx)
		if err != nil {
			logger.Warn("preflight cost estimate failed, proceeding without gate",
				"event", "settlement_preflight_skipped",
				"module", "payment-rails/settlement-engine",
				"layer", "application",
				"family", string(family),
				"error", err.Error(),
			)
			continue
		}

		needed := totals[family]
		fees := estimate.PerTransferFee.Mul(decimal.NewFromInt(int64(counts[family])))
		if balance.Token.LessThan(needed) {
			return fmt.Errorf("%w: need %s, token balance %s",
				domainerrors.ErrResourceExhausted, needed, balance.Token)
		}
		if balance.Native.LessThan(fees) {
			return fmt.Errorf("%w: need %s %s for fees, native balance %s",
				domainerrors.ErrResourceExhausted, fees, estimate.Currency, balance.Native)
		}
	}
	return nil
}

func classifyTransferError(err error) entities.ErrorKind {
	switch {
	case errors.Is(err, domainerrors.ErrTransferInsufficientFunds):
		return entities.ErrorKindInsufficientFunds
	case errors.Is(err, domainerrors.ErrTransferRejected):
		return entities.ErrorKindRejected
	case errors.Is(err, context.DeadlineExceeded):
		return entities.ErrorKindTimeout
	default:
		return entities.ErrorKindNetwork
	}
}

func (s Service) concurrency() int {
	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	if max := s.maxRecipients(); limit > max {
		limit = max
	}
	return limit
}

func (s Service) transferTimeout() time.Duration {
	if s.TransferTimeout <= 0 {
		return defaultTransferTimeout
	}
	return s.TransferTimeout
}
