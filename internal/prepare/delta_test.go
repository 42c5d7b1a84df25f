package prepare

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/proposalcore/pricing-engine/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNeedsFullRebuild_NilCacheForcesRebuild(t *testing.T) {
	assert.True(t, needsFullRebuild(nil, &domain.CalculateRequest{}, 0))
}

func TestNeedsFullRebuild_NoChangesAllowsCacheReuse(t *testing.T) {
	cached := &domain.FrozenInput{SchemaVersion: "1", LineItems: []domain.LineItem{{ID: "a"}}}
	req := &domain.CalculateRequest{Config: domain.TaxConfig{SchemaVersion: "1"}}
	assert.False(t, needsFullRebuild(cached, req, 0))
}

func TestNeedsFullRebuild_SmallDeltaAllowsPatch(t *testing.T) {
	cached := &domain.FrozenInput{
		SchemaVersion: "1",
		LineItems:     []domain.LineItem{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Modifiers:     []domain.Modifier{{ID: "m1"}},
	}
	req := &domain.CalculateRequest{
		Config: domain.TaxConfig{SchemaVersion: "1"},
		Changes: &domain.Delta{
			Type:             domain.DeltaLineItem,
			ChangedLineItems: []domain.LineItem{{ID: "a", UnitPrice: dec("10")}},
		},
	}
	assert.False(t, needsFullRebuild(cached, req, 0))
}

func TestNeedsFullRebuild_SchemaVersionMismatchForcesRebuild(t *testing.T) {
	cached := &domain.FrozenInput{
		SchemaVersion: "1",
		LineItems:     []domain.LineItem{{ID: "a"}},
	}
	req := &domain.CalculateRequest{
		Config:  domain.TaxConfig{SchemaVersion: "2"},
		Changes: &domain.Delta{Type: domain.DeltaLineItem},
	}
	assert.True(t, needsFullRebuild(cached, req, 0))
}

func TestNeedsFullRebuild_TooManyRecentFailuresForcesRebuild(t *testing.T) {
	cached := &domain.FrozenInput{
		SchemaVersion: "1",
		LineItems:     []domain.LineItem{{ID: "a"}, {ID: "b"}},
	}
	req := &domain.CalculateRequest{
		Config:  domain.TaxConfig{SchemaVersion: "1"},
		Changes: &domain.Delta{Type: domain.DeltaLineItem, ChangedLineItems: []domain.LineItem{{ID: "a"}}},
	}
	assert.True(t, needsFullRebuild(cached, req, 10))
}

func TestApplyDelta_MergesChangedAndRemovesDeleted(t *testing.T) {
	cached := &domain.FrozenInput{
		ProposalID: "p1",
		LineItems: []domain.LineItem{
			{ID: "a", UnitPrice: dec("10")},
			{ID: "b", UnitPrice: dec("20")},
			{ID: "c", UnitPrice: dec("30")},
		},
		Modifiers: []domain.Modifier{{ID: "m1"}},
	}
	delta := &domain.Delta{
		Type:               domain.DeltaLineItem,
		ChangedLineItems:   []domain.LineItem{{ID: "a", UnitPrice: dec("15")}},
		RemovedLineItemIDs: []string{"b"},
	}

	snap := applyDelta(cached, delta)

	assert.Len(t, snap.LineItems, 2)
	assert.Equal(t, "a", snap.LineItems[0].ID)
	assert.True(t, snap.LineItems[0].UnitPrice.Equal(dec("15")))
	assert.Equal(t, "c", snap.LineItems[1].ID)
}

func TestCascadeDepth_FollowsDependencyChain(t *testing.T) {
	cached := &domain.FrozenInput{
		Dependencies: []domain.Dependency{
			{ModifierID: "m2", DependsOn: "m1"},
			{ModifierID: "m3", DependsOn: "m2"},
		},
	}
	delta := &domain.Delta{ChangedModifiers: []domain.Modifier{{ID: "m1"}}}
	assert.Equal(t, 2, cascadeDepth(cached, delta))
}
