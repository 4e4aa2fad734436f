package application

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	domainerrors "requity/contexts/payment-rails/settlement-engine/domain/errors"
	"requity/contexts/payment-rails/settlement-engine/ports"
)

const (
	solanaAddrA = "So11111111111111111111111111111111111111112"
	solanaAddrB = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	solanaAddrC = "SysvarRent111111111111111111111111111111111"
	solanaAddrD = "Vote111111111111111111111111111111111111111"
	ethAddrA    = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func TestDetectFamily(t *testing.T) {
	cases := []struct {
		address string
		family  entities.NetworkFamily
		ok      bool
	}{
		{solanaAddrA, entities.FamilySolana, true},
		{ethAddrA, entities.FamilyEthereum, true},
		{"0x5290840009852788", "", false},
		{"0xZZ908400098527886E0F7030069857D2E4169EE7", "", false},
		{"not-an-address", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		family, ok := DetectFamily(tc.address)
		if ok != tc.ok || family != tc.family {
			t.Fatalf("DetectFamily(%q) = %q, %v; want %q, %v", tc.address, family, ok, tc.family, tc.ok)
		}
	}
}

func TestValidateSplitAcceptsSumWithinTolerance(t *testing.T) {
	s := Service{}
	req, err := s.validateSplit(ports.SplitSettlementInput{
		Recipients: []ports.SplitRecipientInput{
			{Address: solanaAddrA, Amount: decimal.NewFromFloat(0.06), Role: "creator"},
			{Address: solanaAddrB, Amount: decimal.NewFromFloat(0.02), Role: "user"},
		},
		TotalAmount: decimal.NewFromFloat(0.08),
	})
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if len(req.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(req.Recipients))
	}

	// 0.07 declared vs 0.08 actual is still inside the 0.01 tolerance.
	if _, err := s.validateSplit(ports.SplitSettlementInput{
		Recipients: []ports.SplitRecipientInput{
			{Address: solanaAddrA, Amount: decimal.NewFromFloat(0.06)},
			{Address: solanaAddrB, Amount: decimal.NewFromFloat(0.02)},
		},
		TotalAmount: decimal.NewFromFloat(0.07),
	}); err != nil {
		t.Fatalf("expected sum within tolerance to pass, got %v", err)
	}
}

func TestValidateSplitRejectsSumOutsideTolerance(t *testing.T) {
	s := Service{}
	_, err := s.validateSplit(ports.SplitSettlementInput{
		Recipients: []ports.SplitRecipientInput{
			{Address: solanaAddrA, Amount: decimal.NewFromFloat(0.06)},
			{Address: solanaAddrB, Amount: decimal.NewFromFloat(0.02)},
		},
		TotalAmount: decimal.NewFromFloat(0.10),
	})
	if !errors.Is(err, domainerrors.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	var validation *domainerrors.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(validation.Fields) != 1 || validation.Fields[0].Field != "totalAmount" {
		t.Fatalf("expected a totalAmount field error, got %+v", validation.Fields)
	}
}

func TestValidateSplitRejectsDuplicateAddresses(t *testing.T) {
	s := Service{}
	_, err := s.validateSplit(ports.SplitSettlementInput{
		Recipients: []ports.SplitRecipientInput{
			{Address: solanaAddrA, Amount: decimal.NewFromFloat(0.05)},
			{Address: solanaAddrA, Amount: decimal.NewFromFloat(0.05)},
		},
		TotalAmount: decimal.NewFromFloat(0.10),
	})
	var validation *domainerrors.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validation.Fields[0].Field != "recipients[1].address" {
		t.Fatalf("expected duplicate flagged on recipients[1].address, got %+v", validation.Fields)
	}
}

func TestValidateSplitRejectsBadRoleAndAmount(t *testing.T) {
	s := Service{}
	_, err := s.validateSplit(ports.SplitSettlementInput{
		Recipients: []ports.SplitRecipientInput{
			{Address: solanaAddrA, Amount: decimal.Zero, Role: "owner"},
		},
		TotalAmount: decimal.NewFromFloat(1),
	})
	var validation *domainerrors.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(validation.Fields) != 2 {
		t.Fatalf("expected amount and role errors, got %+v", validation.Fields)
	}
}

func TestValidateAttributionRequiresAtLeastOneAddress(t *testing.T) {
	s := Service{}
	_, err := s.validateAttribution(ports.AttributionInput{
		SourceAddresses: []string{"", "  "},
	})
	if !errors.Is(err, domainerrors.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestValidateAttributionEnforcesRecipientCap(t *testing.T) {
	s := Service{MaxRecipients: 2}
	_, err := s.validateAttribution(ports.AttributionInput{
		PrimaryAddress:  solanaAddrA,
		SourceAddresses: []string{solanaAddrB, solanaAddrC},
	})
	if !errors.Is(err, domainerrors.ErrValidationFailed) {
		t.Fatalf("expected validation failure for 3 recipients with cap 2, got %v", err)
	}

	if _, err := s.validateAttribution(ports.AttributionInput{
		PrimaryAddress:  solanaAddrA,
		SourceAddresses: []string{solanaAddrB},
	}); err != nil {
		t.Fatalf("expected 2 recipients with cap 2 to pass, got %v", err)
	}
}

func TestValidateAttributionMixedFamilies(t *testing.T) {
	s := Service{}
	req, err := s.validateAttribution(ports.AttributionInput{
		PrimaryAddress:  solanaAddrA,
		SourceAddresses: []string{ethAddrA},
	})
	if err != nil {
		t.Fatalf("expected ethereum-format addresses to validate, got %v", err)
	}
	if req.Recipients[0].Family != entities.FamilySolana || req.Recipients[1].Family != entities.FamilyEthereum {
		t.Fatalf("unexpected families: %+v", req.Recipients)
	}
}

func TestValidateDirectEnforcesAmountCap(t *testing.T) {
	s := Service{}
	_, err := s.validateDirect(ports.DirectSendInput{
		Address: solanaAddrA,
		Amount:  decimal.NewFromInt(1001),
	})
	if !errors.Is(err, domainerrors.ErrValidationFailed) {
		t.Fatalf("expected cap violation, got %v", err)
	}

	if _, err := s.validateDirect(ports.DirectSendInput{
		Address: solanaAddrA,
		Amount:  decimal.NewFromInt(1000),
	}); err != nil {
		t.Fatalf("expected amount at the cap to pass, got %v", err)
	}
}

func TestValidateDirectRejectsNonPositiveAmount(t *testing.T) {
	s := Service{}
	_, err := s.validateDirect(ports.DirectSendInput{
		Address: solanaAddrA,
		Amount:  decimal.NewFromInt(-1),
	})
	if !errors.Is(err, domainerrors.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}
