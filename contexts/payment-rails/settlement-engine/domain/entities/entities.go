package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetworkFamily identifies which ledger network an address belongs to.
type NetworkFamily string

const (
	FamilySolana   NetworkFamily = "solana"
	FamilyEthereum NetworkFamily = "ethereum"
)

// RecipientRole tags why a recipient participates in a split.
type RecipientRole string

const (
	RoleCreator  RecipientRole = "creator"
	RoleUser     RecipientRole = "user"
	RolePlatform RecipientRole = "platform"
	RoleUnset    RecipientRole = ""
)

// PayoutPolicy selects how normalized recipients are priced.
// Flat-rate pays every recipient the same fixed amount (attribution rewards);
// split pays each recipient its declared share of a declared total.
type PayoutPolicy string

const (
	PolicyFlatRate PayoutPolicy = "flat_rate"
	PolicySplit    PayoutPolicy = "split"
	PolicyDirect   PayoutPolicy = "direct"
)

// RecipientSpec is one payout target as declared by the caller.
type RecipientSpec struct {
	Address string
	Family  NetworkFamily
	Amount  decimal.Decimal
	Role    RecipientRole
}

// PayoutRequest is the validated, immutable form of an inbound
// attribution/split call. DeclaredTotal is zero when the caller did not
// declare one.
type PayoutRequest struct {
	Recipients    []RecipientSpec
	DeclaredTotal decimal.Decimal
	CorrelationID string
	Memo          string
}

// NormalizedRecipient is one entry of a NormalizedRecipientSet. Key is the
// family-qualified identity ("solana:<address>") used for deduplication.
type NormalizedRecipient struct {
	Key     string
	Address string
	Family  NetworkFamily
	Amount  decimal.Decimal
	Role    RecipientRole
}

// NormalizedRecipientSet is an ordered, deduplicated recipient set. Order is
// first-seen order and is the order settlement outcomes are reported in.
type NormalizedRecipientSet struct {
	Recipients []NormalizedRecipient
}

func (s NormalizedRecipientSet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Recipients {
		total = total.Add(r.Amount)
	}
	return total
}

// Families returns the distinct network families present, in first-seen order.
func (s NormalizedRecipientSet) Families() []NetworkFamily {
	seen := make(map[NetworkFamily]bool, 2)
	families := make([]NetworkFamily, 0, 2)
	for _, r := range s.Recipients {
		if !seen[r.Family] {
			seen[r.Family] = true
			families = append(families, r.Family)
		}
	}
	return families
}

// ErrorKind classifies a failed transfer outcome.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindNetwork           ErrorKind = "network_error"
	ErrorKindInsufficientFunds ErrorKind = "insufficient_funds"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindRejected          ErrorKind = "rejected"
)

// TransferOutcome records what happened for exactly one recipient. It is
// immutable once the orchestrator records it.
type TransferOutcome struct {
	Address              string
	Family               NetworkFamily
	Amount               decimal.Decimal
	TransactionReference string
	Succeeded            bool
	ErrorKind            ErrorKind
	ErrorMessage         string
}

// SettlementResult is the sole externally observable record of a settlement.
// Outcomes preserve normalization order regardless of completion order.
// TotalSent sums confirmed outcomes only.
type SettlementResult struct {
	SettlementID    string
	CorrelationID   string
	Policy          PayoutPolicy
	Outcomes        []TransferOutcome
	TotalSent       decimal.Decimal
	SuccessCount    int
	TotalRecipients int
	SettledAt       time.Time
}

// FeeEstimate is the per-transfer network cost, denominated in the ledger's
// native currency (not the payout token).
type FeeEstimate struct {
	PerTransferFee decimal.Decimal
	Currency       string
}

// BalanceInfo reports the treasury wallet position: native currency for fees,
// payout token for recipient amounts.
type BalanceInfo struct {
	Native decimal.Decimal
	Token  decimal.Decimal
}
