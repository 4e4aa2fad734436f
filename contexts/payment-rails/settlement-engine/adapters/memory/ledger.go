package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
)

// Ledger is an in-memory transfer client. It confirms every transfer
// immediately unless the target address has a scripted failure.
type Ledger struct {
	mu          sync.Mutex
	family      entities.NetworkFamily
	payer       string
	native      decimal.Decimal
	token       decimal.Decimal
	fee         decimal.Decimal
	failures    map[string]error
	submissions []LedgerSubmission
}

// LedgerSubmission records one SubmitTransfer call.
type LedgerSubmission struct {
	Address string
	Amount  decimal.Decimal
	Memo    string
}

func NewLedger(family entities.NetworkFamily, payer string) *Ledger {
	return &Ledger{
		family:   family,
		payer:    payer,
		native:   decimal.NewFromInt(1),
		token:    decimal.NewFromInt(1_000_000),
		fee:      decimal.New(5000, -9),
		failures: map[string]error{},
	}
}

func (l *Ledger) Family() entities.NetworkFamily { return l.family }

func (l *Ledger) PayerAddress() string { return l.payer }

// FailAddress makes every transfer to address return err.
func (l *Ledger) FailAddress(address string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[address] = err
}

// SetBalances overrides the payer's native and token balances.
func (l *Ledger) SetBalances(native, token decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.native = native
	l.token = token
}

// SetFee overrides the per-transfer fee estimate.
func (l *Ledger) SetFee(fee decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = fee
}

func (l *Ledger) SubmitTransfer(_ context.Context, address string, amount decimal.Decimal, memo string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err, ok := l.failures[address]; ok {
		return "", err
	}
	l.submissions = append(l.submissions, LedgerSubmission{Address: address, Amount: amount, Memo: memo})
	l.token = l.token.Sub(amount)
	return fmt.Sprintf("memledger-%s", uuid.NewString()), nil
}

func (l *Ledger) QueryBalance(_ context.Context, _ string) (entities.BalanceInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return entities.BalanceInfo{Native: l.native, Token: l.token}, nil
}

func (l *Ledger) EstimateCost(_ context.Context) (entities.FeeEstimate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return entities.FeeEstimate{PerTransferFee: l.fee, Currency: "SOL"}, nil
}

// Submissions returns a snapshot of all submitted transfers, for tests.
func (l *Ledger) Submissions() []LedgerSubmission {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make([]LedgerSubmission, len(l.submissions))
	copy(snapshot, l.submissions)
	return snapshot
}
