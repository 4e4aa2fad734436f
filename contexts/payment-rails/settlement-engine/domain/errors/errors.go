package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationFailed aborts the whole call before any transfer.
	ErrValidationFailed = errors.New("payout request validation failed")
	// ErrConfigurationMissing means the treasury wallet is not provisioned.
	// Kept distinct from transfer failures so operators can tell a
	// misconfigured service apart from a failed payment.
	ErrConfigurationMissing = errors.New("ledger wallet credentials are not configured")
	// ErrResourceExhausted means pre-flight predicted the batch cannot
	// complete; no transfer was submitted.
	ErrResourceExhausted = errors.New("treasury balance cannot cover the settlement")
	// ErrUnsupportedNetwork means a normalized recipient belongs to a family
	// with no bound transfer client. The whole call fails before any transfer
	// rather than silently dropping that recipient.
	ErrUnsupportedNetwork = errors.New("no transfer client bound for network family")
	ErrIdempotencyConflict = errors.New("correlation id already used with a different payload")
	ErrSettlementNotFound  = errors.New("settlement not found")
	ErrEngineFault         = errors.New("settlement engine fault")
)

// Transfer failure sentinels. Transfer clients wrap their network errors with
// one of these so the orchestrator can classify the per-recipient outcome.
var (
	ErrTransferNetwork           = errors.New("ledger network error")
	ErrTransferInsufficientFunds = errors.New("insufficient funds for transfer")
	ErrTransferRejected          = errors.New("transfer rejected by ledger")
)

// FieldError locates one validation problem for the caller.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError carries per-field detail and matches ErrValidationFailed
// under errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
