package compute

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proposalcore/pricing-engine/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func baseInput() *domain.FrozenInput {
	return &domain.FrozenInput{
		ProposalID:    "prop-1",
		Tenant:        "tenant-1",
		SchemaVersion: "1",
		LineItems: []domain.LineItem{
			{ID: "li-1", UnitPrice: dec("100"), Quantity: dec("1"), TaxSetting: domain.TaxSettingTaxable},
		},
		Config: domain.TaxConfig{Mode: domain.TaxModeRetail, RetailRate: dec("0.08"), SchemaVersion: "1"},
	}
}

func TestCompute_SimpleTaxableSale(t *testing.T) {
	in := baseInput()
	result, err := Compute(in, DefaultOptions())
	require.NoError(t, err)

	assert.True(t, result.SubtotalQ2.Equal(dec("100.00")))
	assert.True(t, result.RetailTaxQ2.Equal(dec("8.00")))
	assert.True(t, result.CustomerGrandTotalQ2.Equal(dec("108.00")))
	assert.NotEmpty(t, result.Checksum)
}

func TestCompute_PercentageDiscountRestrictedToPartition(t *testing.T) {
	in := baseInput()
	in.LineItems = []domain.LineItem{
		{ID: "li-1", UnitPrice: dec("300"), Quantity: dec("1"), TaxSetting: domain.TaxSettingTaxable},
		{ID: "li-2", UnitPrice: dec("225"), Quantity: dec("1"), TaxSetting: domain.TaxSettingNonTaxable},
	}
	in.Modifiers = []domain.Modifier{
		{
			ID: "mod-1", Kind: domain.ModifierKindPercentage, Value: dec("-10"),
			TaxSetting: domain.TaxSettingInherit, Category: "discount",
			ApplicationType: domain.ApplicationPreTax, CreatedAt: time.Unix(0, 0),
		},
	}

	result, err := Compute(in, DefaultOptions())
	require.NoError(t, err)

	// mod-1 has no LineItemId, so resolveTaxSetting defaults inherit to
	// TAXABLE; its base is the taxable partition (300), not the whole
	// 525 subtotal, per the component-design reading documented in
	// the grounding ledger.
	require.Len(t, result.Adjustments, 1)
	assert.True(t, result.Adjustments[0].AmountQ7.Equal(dec("-30")))
}

func TestCompute_MarginModifierTargetsCostRatio(t *testing.T) {
	in := baseInput()
	in.LineItems = []domain.LineItem{
		{ID: "li-1", UnitPrice: dec("100"), Quantity: dec("2"), Cost: dec("60"), HasCost: true, TaxSetting: domain.TaxSettingTaxable},
	}
	in.Modifiers = []domain.Modifier{
		{
			ID: "mod-margin", Kind: domain.ModifierKindMargin, Value: dec("25"),
			TaxSetting: domain.TaxSettingTaxable, Category: "adjustment",
			ApplicationType: domain.ApplicationPreTax, LineItemID: "li-1",
			CreatedAt: time.Unix(0, 0),
		},
	}

	result, err := Compute(in, DefaultOptions())
	require.NoError(t, err)

	// newPrice = 60 / (1 - 0.25) = 80; delta = (80-100) * 2 = -40
	require.Len(t, result.Adjustments, 1)
	assert.True(t, result.Adjustments[0].AmountQ7.Equal(dec("-40")))
}

func TestCompute_MarginOutOfRangeRejected(t *testing.T) {
	in := baseInput()
	in.LineItems = []domain.LineItem{
		{ID: "li-1", UnitPrice: dec("100"), Quantity: dec("1"), Cost: dec("60"), HasCost: true, TaxSetting: domain.TaxSettingTaxable},
	}
	in.Modifiers = []domain.Modifier{
		{
			ID: "mod-margin", Kind: domain.ModifierKindMargin, Value: dec("100"),
			TaxSetting: domain.TaxSettingTaxable, ApplicationType: domain.ApplicationPreTax,
			LineItemID: "li-1", CreatedAt: time.Unix(0, 0),
		},
	}

	_, err := Compute(in, DefaultOptions())
	require.Error(t, err)
}

func TestCompute_FixedDiscountResidualGoesToLastLine(t *testing.T) {
	in := baseInput()
	in.LineItems = []domain.LineItem{
		{ID: "a", UnitPrice: dec("10"), Quantity: dec("1"), TaxSetting: domain.TaxSettingTaxable},
		{ID: "b", UnitPrice: dec("10"), Quantity: dec("1"), TaxSetting: domain.TaxSettingTaxable},
		{ID: "c", UnitPrice: dec("10"), Quantity: dec("1"), TaxSetting: domain.TaxSettingTaxable},
	}
	in.Modifiers = []domain.Modifier{
		{
			ID: "mod-fixed", Kind: domain.ModifierKindFixed, Value: dec("-10"),
			TaxSetting: domain.TaxSettingTaxable, Category: "discount",
			ApplicationType: domain.ApplicationPreTax, CreatedAt: time.Unix(0, 0),
		},
	}

	result, err := Compute(in, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.Adjustments, 1)

	allocs := result.Adjustments[0].PerLineAllocations
	require.Len(t, allocs, 3)
	sum := decimal.Zero
	for _, a := range allocs {
		sum = sum.Add(a.AmountQ7)
	}
	assert.True(t, sum.Equal(dec("-10")))
	assert.Equal(t, "c", allocs[2].LineItemID)
}

func TestCompute_RejectsDuplicateLineItemIDs(t *testing.T) {
	in := baseInput()
	in.LineItems = append(in.LineItems, in.LineItems[0])
	_, err := Compute(in, DefaultOptions())
	assert.Error(t, err)
}

func TestCompute_IsDeterministicAcrossRepeatedRuns(t *testing.T) {
	in := baseInput()
	first, err := Compute(in, DefaultOptions())
	require.NoError(t, err)
	second, err := Compute(in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first.Checksum, second.Checksum)
}

func TestCompute_UseTaxOnlyAppliesToEligibleUncollectedLines(t *testing.T) {
	in := baseInput()
	in.Config = domain.TaxConfig{Mode: domain.TaxModeUseTax, UseTaxRate: dec("0.05"), SchemaVersion: "1"}
	in.LineItems = []domain.LineItem{
		{ID: "li-1", UnitPrice: dec("100"), Quantity: dec("1"), Cost: dec("40"), HasCost: true, UseTaxEligible: true, VendorTaxCollected: false, TaxSetting: domain.TaxSettingTaxable},
		{ID: "li-2", UnitPrice: dec("100"), Quantity: dec("1"), Cost: dec("40"), HasCost: true, UseTaxEligible: true, VendorTaxCollected: true, TaxSetting: domain.TaxSettingTaxable},
		{ID: "li-3", UnitPrice: dec("100"), Quantity: dec("1"), Cost: dec("40"), HasCost: true, UseTaxEligible: false, TaxSetting: domain.TaxSettingTaxable},
	}

	result, err := Compute(in, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, result.UseTaxQ2)
	// Only li-1 qualifies: base = 40, tax = 40*0.05 = 2.00
	assert.True(t, result.UseTaxQ2.Equal(dec("2.00")))
}
