package commit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/proposalcore/pricing-engine/internal/domain"
)

func TestAdvisoryLockKey_DeterministicAndDistinct(t *testing.T) {
	a := advisoryLockKey("proposal-1")
	b := advisoryLockKey("proposal-1")
	c := advisoryLockKey("proposal-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGroupKeyString_EncodesEveryField(t *testing.T) {
	k := domain.GroupKey{
		ResolvedTaxSetting: domain.TaxSetting("TAXABLE"),
		Kind:               domain.ModifierKindPercentage,
		Category:           "shipping",
		AffectsQuantity:    true,
		CostPercentage:     "0.5",
		DisplayMode:        "line",
		ApplicationType:    domain.ApplicationPreTax,
		ProductID:          "null",
	}

	s := groupKeyString(k)
	assert.Equal(t, "TAXABLE|percentage|shipping|true|0.5|line|pre_tax|null", s)
}

func TestGroupKeyString_DiffersWhenAffectsQuantityDiffers(t *testing.T) {
	base := domain.GroupKey{Kind: domain.ModifierKindFixed, ProductID: "null"}
	withQty := base
	withQty.AffectsQuantity = true

	assert.NotEqual(t, groupKeyString(base), groupKeyString(withQty))
}

func TestSumCombinedValue_MirrorsAdjustmentAmount(t *testing.T) {
	adj := domain.Adjustment{AmountQ7: decimal.RequireFromString("12.34")}
	assert.Equal(t, "12.34", sumCombinedValue(adj))
}
