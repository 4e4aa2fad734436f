package application

import (
	"testing"

	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
)

func TestNormalizeFlatRateDedupesAndPreservesOrder(t *testing.T) {
	req := entities.PayoutRequest{
		Recipients: []entities.RecipientSpec{
			{Address: solanaAddrA, Family: entities.FamilySolana},
			{Address: solanaAddrB, Family: entities.FamilySolana},
			{Address: solanaAddrA, Family: entities.FamilySolana},
		},
	}
	flat := decimal.NewFromFloat(0.01)
	set := NormalizeFlatRate(req, flat)

	if len(set.Recipients) != 2 {
		t.Fatalf("expected 2 deduplicated recipients, got %d", len(set.Recipients))
	}
	if set.Recipients[0].Address != solanaAddrA || set.Recipients[1].Address != solanaAddrB {
		t.Fatalf("first-seen order not preserved: %+v", set.Recipients)
	}
	for _, r := range set.Recipients {
		if !r.Amount.Equal(flat) {
			t.Fatalf("expected flat amount %s for %s, got %s", flat, r.Address, r.Amount)
		}
	}
	if !set.Total().Equal(decimal.NewFromFloat(0.02)) {
		t.Fatalf("expected total 0.02, got %s", set.Total())
	}
}

func TestNormalizeKeyIsFamilyQualified(t *testing.T) {
	req := entities.PayoutRequest{
		Recipients: []entities.RecipientSpec{
			{Address: solanaAddrA, Family: entities.FamilySolana, Amount: decimal.NewFromInt(1)},
			{Address: ethAddrA, Family: entities.FamilyEthereum, Amount: decimal.NewFromInt(2)},
		},
	}
	set := NormalizeSplit(req)

	if len(set.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(set.Recipients))
	}
	if set.Recipients[0].Key != "solana:"+solanaAddrA {
		t.Fatalf("unexpected key %q", set.Recipients[0].Key)
	}
	if set.Recipients[1].Key != "ethereum:"+ethAddrA {
		t.Fatalf("unexpected key %q", set.Recipients[1].Key)
	}

	families := set.Families()
	if len(families) != 2 || families[0] != entities.FamilySolana || families[1] != entities.FamilyEthereum {
		t.Fatalf("unexpected families %v", families)
	}
}

func TestNormalizeSplitKeepsDeclaredAmounts(t *testing.T) {
	req := entities.PayoutRequest{
		Recipients: []entities.RecipientSpec{
			{Address: solanaAddrA, Family: entities.FamilySolana, Amount: decimal.NewFromFloat(0.75)},
			{Address: solanaAddrB, Family: entities.FamilySolana, Amount: decimal.NewFromFloat(0.25)},
		},
		DeclaredTotal: decimal.NewFromInt(1),
	}
	set := NormalizeSplit(req)

	if !set.Recipients[0].Amount.Equal(decimal.NewFromFloat(0.75)) {
		t.Fatalf("expected declared amount kept, got %s", set.Recipients[0].Amount)
	}
	if !set.Total().Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected total 1, got %s", set.Total())
	}
}
