package application

import (
	"strings"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"

	"github.com/shopspring/decimal"
)

func recipientKey(family entities.NetworkFamily, address string) string {
	return string(family) + ":" + strings.TrimSpace(address)
}

// NormalizeSplit builds the ordered recipient set for split and direct
// settlements: each distinct family-qualified address keeps its own declared
// amount. Validation already rejected split duplicates; any that slip through
// keep the first-seen amount rather than being paid twice.
func NormalizeSplit(req entities.PayoutRequest) entities.NormalizedRecipientSet {
	return normalize(req, func(r entities.RecipientSpec) decimal.Decimal { return r.Amount })
}

// NormalizeFlatRate builds the ordered recipient set for attribution
// settlements: every distinct family-qualified address is paid the same fixed
// amount exactly once, no matter how many request fields named it.
func NormalizeFlatRate(req entities.PayoutRequest, flatAmount decimal.Decimal) entities.NormalizedRecipientSet {
	return normalize(req, func(entities.RecipientSpec) decimal.Decimal { return flatAmount })
}

func normalize(req entities.PayoutRequest, amountOf func(entities.RecipientSpec) decimal.Decimal) entities.NormalizedRecipientSet {
	seen := make(map[string]bool, len(req.Recipients))
	out := make([]entities.NormalizedRecipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		key := recipientKey(r.Family, r.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, entities.NormalizedRecipient{
			Key:     key,
			Address: strings.TrimSpace(r.Address),
			Family:  r.Family,
			Amount:  amountOf(r),
			Role:    r.Role,
		})
	}
	return entities.NormalizedRecipientSet{Recipients: out}
}
