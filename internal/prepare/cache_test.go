package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proposalcore/pricing-engine/internal/domain"
)

func sampleRequest() *domain.CalculateRequest {
	return &domain.CalculateRequest{
		ProposalID: "p1",
		Tenant:     "acme",
		LineItems: []domain.LineItem{
			{ID: "li1", UnitPrice: dec("100"), Quantity: dec("2")},
		},
		Modifiers: []domain.Modifier{
			{ID: "m1", Kind: domain.ModifierKindPercentage, Value: dec("10")},
		},
		Config: domain.TaxConfig{SchemaVersion: "1"},
	}
}

func TestKey_DeterministicForEquivalentRequests(t *testing.T) {
	a := Key(sampleRequest())
	b := Key(sampleRequest())
	assert.Equal(t, a, b)
}

func TestKey_IgnoresChangesDelta(t *testing.T) {
	withoutDelta := sampleRequest()
	withDelta := sampleRequest()
	withDelta.Changes = &domain.Delta{
		Type:             domain.DeltaLineItem,
		ChangedLineItems: []domain.LineItem{{ID: "li1", UnitPrice: dec("999")}},
	}

	assert.Equal(t, Key(withoutDelta), Key(withDelta))
}

func TestKey_DiffersWhenLineItemsDiffer(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()
	b.LineItems[0].UnitPrice = dec("200")

	assert.NotEqual(t, Key(a), Key(b))
}

func TestKey_DiffersWhenLineItemTaxFlagsDiffer(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()
	b.LineItems[0].UseTaxEligible = true

	assert.NotEqual(t, Key(a), Key(b))

	c := sampleRequest()
	c.LineItems[0].VendorTaxCollected = true
	assert.NotEqual(t, Key(a), Key(c))
}

func TestKey_DiffersWhenModifierPlacementFieldsDiffer(t *testing.T) {
	base := sampleRequest()

	withApplicationType := sampleRequest()
	withApplicationType.Modifiers[0].ApplicationType = domain.ApplicationPostTax
	assert.NotEqual(t, Key(base), Key(withApplicationType))

	withCategory := sampleRequest()
	withCategory.Modifiers[0].Category = "fee"
	assert.NotEqual(t, Key(base), Key(withCategory))

	withLineItemID := sampleRequest()
	withLineItemID.Modifiers[0].LineItemID = "li1"
	assert.NotEqual(t, Key(base), Key(withLineItemID))

	withChainPriority := sampleRequest()
	withChainPriority.Modifiers[0].ChainPriority = 5
	assert.NotEqual(t, Key(base), Key(withChainPriority))

	withCostPercentage := sampleRequest()
	withCostPercentage.Modifiers[0].CostPercentage = dec("0.5")
	assert.NotEqual(t, Key(base), Key(withCostPercentage))
}
