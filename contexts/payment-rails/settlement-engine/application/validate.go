package application

import (
	"fmt"
	"strings"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	domainerrors "requity/contexts/payment-rails/settlement-engine/domain/errors"
	"requity/contexts/payment-rails/settlement-engine/ports"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxRecipients = 10
	solanaAddressMinLen  = 32
	solanaAddressMaxLen  = 44
	ethereumAddressLen   = 42
	solanaKeyLen         = 32
)

// sumTolerance is the allowed absolute gap between the declared total and the
// sum of recipient amounts, in currency minor units.
var sumTolerance = decimal.NewFromFloat(0.01)

var defaultDirectAmountCap = decimal.NewFromInt(1000)

// DetectFamily classifies an address by wire format: 0x-prefixed 40-hex is
// ethereum, base58 text decoding to a 32-byte key is solana.
func DetectFamily(address string) (entities.NetworkFamily, bool) {
	addr := strings.TrimSpace(address)
	switch {
	case isEthereumAddress(addr):
		return entities.FamilyEthereum, true
	case isSolanaAddress(addr):
		return entities.FamilySolana, true
	default:
		return "", false
	}
}

func isEthereumAddress(addr string) bool {
	if len(addr) != ethereumAddressLen || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func isSolanaAddress(addr string) bool {
	if len(addr) < solanaAddressMinLen || len(addr) > solanaAddressMaxLen {
		return false
	}
	raw, err := base58.Decode(addr)
	return err == nil && len(raw) == solanaKeyLen
}

func validRole(role string) bool {
	switch entities.RecipientRole(strings.TrimSpace(role)) {
	case entities.RoleCreator, entities.RoleUser, entities.RolePlatform, entities.RoleUnset:
		return true
	default:
		return false
	}
}

func (s Service) validateDirect(input ports.DirectSendInput) (entities.PayoutRequest, error) {
	var fields []domainerrors.FieldError

	address := strings.TrimSpace(input.Address)
	family, ok := DetectFamily(address)
	if !ok {
		fields = append(fields, domainerrors.FieldError{
			Field:   "recipientAddress",
			Message: "not a recognized solana or ethereum address",
		})
	}
	if !input.Amount.IsPositive() {
		fields = append(fields, domainerrors.FieldError{
			Field:   "amount",
			Message: "amount must be positive",
		})
	} else if input.Amount.GreaterThan(s.directAmountCap()) {
		fields = append(fields, domainerrors.FieldError{
			Field:   "amount",
			Message: fmt.Sprintf("amount exceeds the per-transfer cap of %s", s.directAmountCap()),
		})
	}
	if len(fields) > 0 {
		return entities.PayoutRequest{}, domainerrors.NewValidationError(fields...)
	}

	return entities.PayoutRequest{
		Recipients: []entities.RecipientSpec{{
			Address: address,
			Family:  family,
			Amount:  input.Amount,
		}},
		CorrelationID: strings.TrimSpace(input.CorrelationID),
		Memo:          strings.TrimSpace(input.Memo),
	}, nil
}

func (s Service) validateAttribution(input ports.AttributionInput) (entities.PayoutRequest, error) {
	var fields []domainerrors.FieldError
	recipients := make([]entities.RecipientSpec, 0, len(input.SourceAddresses)+1)

	named := 0
	if primary := strings.TrimSpace(input.PrimaryAddress); primary != "" {
		named++
		if family, ok := DetectFamily(primary); ok {
			recipients = append(recipients, entities.RecipientSpec{Address: primary, Family: family})
		} else {
			fields = append(fields, domainerrors.FieldError{
				Field:   "primaryId",
				Message: "not a recognized solana or ethereum address",
			})
		}
	}
	for i, source := range input.SourceAddresses {
		addr := strings.TrimSpace(source)
		if addr == "" {
			continue
		}
		named++
		family, ok := DetectFamily(addr)
		if !ok {
			fields = append(fields, domainerrors.FieldError{
				Field:   fmt.Sprintf("sourceAddresses[%d]", i),
				Message: "not a recognized solana or ethereum address",
			})
			continue
		}
		recipients = append(recipients, entities.RecipientSpec{Address: addr, Family: family})
	}

	if named == 0 {
		fields = append(fields, domainerrors.FieldError{
			Field:   "sourceAddresses",
			Message: "at least one payout address is required",
		})
	}
	if named > s.maxRecipients() {
		fields = append(fields, domainerrors.FieldError{
			Field:   "sourceAddresses",
			Message: fmt.Sprintf("at most %d recipients per settlement", s.maxRecipients()),
		})
	}
	if len(fields) > 0 {
		return entities.PayoutRequest{}, domainerrors.NewValidationError(fields...)
	}

	return entities.PayoutRequest{
		Recipients:    recipients,
		CorrelationID: strings.TrimSpace(input.CorrelationID),
		Memo:          strings.TrimSpace(input.Memo),
	}, nil
}

func (s Service) validateSplit(input ports.SplitSettlementInput) (entities.PayoutRequest, error) {
	var fields []domainerrors.FieldError

	if len(input.Recipients) == 0 {
		fields = append(fields, domainerrors.FieldError{
			Field:   "recipients",
			Message: "at least one recipient is required",
		})
	}
	if len(input.Recipients) > s.maxRecipients() {
		fields = append(fields, domainerrors.FieldError{
			Field:   "recipients",
			Message: fmt.Sprintf("at most %d recipients per settlement", s.maxRecipients()),
		})
	}
	if !input.TotalAmount.IsPositive() {
		fields = append(fields, domainerrors.FieldError{
			Field:   "totalAmount",
			Message: "total amount must be positive",
		})
	}

	recipients := make([]entities.RecipientSpec, 0, len(input.Recipients))
	seen := make(map[string]bool, len(input.Recipients))
	sum := decimal.Zero
	for i, r := range input.Recipients {
		addr := strings.TrimSpace(r.Address)
		family, ok := DetectFamily(addr)
		if !ok {
			fields = append(fields, domainerrors.FieldError{
				Field:   fmt.Sprintf("recipients[%d].address", i),
				Message: "not a recognized solana or ethereum address",
			})
			continue
		}
		if !r.Amount.IsPositive() {
			fields = append(fields, domainerrors.FieldError{
				Field:   fmt.Sprintf("recipients[%d].amount", i),
				Message: "amount must be positive",
			})
		}
		if !validRole(r.Role) {
			fields = append(fields, domainerrors.FieldError{
				Field:   fmt.Sprintf("recipients[%d].role", i),
				Message: "role must be creator, user or platform",
			})
		}
		// A duplicate address in split mode would make its amount ambiguous
		// and break the sum audit, so the whole request is rejected.
		key := recipientKey(family, addr)
		if seen[key] {
			fields = append(fields, domainerrors.FieldError{
				Field:   fmt.Sprintf("recipients[%d].address", i),
				Message: "address appears more than once",
			})
			continue
		}
		seen[key] = true
		sum = sum.Add(r.Amount)
		recipients = append(recipients, entities.RecipientSpec{
			Address: addr,
			Family:  family,
			Amount:  r.Amount,
			Role:    entities.RecipientRole(strings.TrimSpace(r.Role)),
		})
	}

	if len(fields) == 0 && sum.Sub(input.TotalAmount).Abs().GreaterThan(sumTolerance) {
		fields = append(fields, domainerrors.FieldError{
			Field:   "totalAmount",
			Message: "recipient amounts do not sum to total amount",
		})
	}
	if len(fields) > 0 {
		return entities.PayoutRequest{}, domainerrors.NewValidationError(fields...)
	}

	return entities.PayoutRequest{
		Recipients:    recipients,
		DeclaredTotal: input.TotalAmount,
		CorrelationID: strings.TrimSpace(input.CorrelationID),
		Memo:          strings.TrimSpace(input.Memo),
	}, nil
}
