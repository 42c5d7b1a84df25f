package compute

import (
	"fmt"
	"sort"

	"github.com/proposalcore/pricing-engine/internal/decimalx"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// categoryRank orders groups within an applicationType cohort by category:
// discount < rebate < fee < bonus < adjustment.
var categoryRank = map[string]int{
	"discount":   0,
	"rebate":     1,
	"fee":        2,
	"bonus":      3,
	"adjustment": 4,
}

// kindRank orders groups within a category by kind:
// percentage < fixed < margin < quantity < cost_adjustment.
var kindRank = map[domain.ModifierKind]int{
	domain.ModifierKindPercentage:        0,
	domain.ModifierKindFixed:             1,
	domain.ModifierKindMargin:            2,
	domain.ModifierKind("quantity"):       3,
	domain.ModifierKind("cost_adjustment"): 4,
}

// applicationRank orders cohorts: pre_tax < cost < post_tax. The "cost"
// cohort holds modifiers whose ApplicationType is the literal "cost"; an
// empty or unrecognised ApplicationType ranks with pre_tax, and
// normalisation defaults a missing applicationType to pre_tax. Compute
// applies every group that is not post_tax, "cost" included, before tax.
var applicationRank = map[domain.ApplicationType]int{
	domain.ApplicationPreTax:             0,
	domain.ApplicationType("cost"):        1,
	domain.ApplicationPostTax:            2,
}

// groupModifiers collapses modifiers sharing the 8-attribute key into
// Groups, summing their values additively, and returns the groups in the
// deterministic application order defined by §4.3.6.
func groupModifiers(modifiers []domain.Modifier, lineItems map[string]domain.LineItem) []domain.Group {
	index := map[string]int{}
	var groups []domain.Group

	for _, m := range modifiers {
		resolved := resolveTaxSetting(m, lineItems)
		productID := m.ProductID
		if productID == "" {
			productID = "null"
		}
		key := domain.GroupKey{
			ResolvedTaxSetting: resolved,
			Kind:               m.Kind,
			Category:           m.Category,
			AffectsQuantity:    m.AffectsQuantity,
			CostPercentage:     decimalx.CanonicalString(m.CostPercentage),
			DisplayMode:        m.DisplayMode,
			ApplicationType:    m.ApplicationType,
			ProductID:          productID,
		}
		keyStr := groupKeyString(key)

		if idx, ok := index[keyStr]; ok {
			g := &groups[idx]
			g.ModifierIDs = append(g.ModifierIDs, m.ID)
			g.CombinedValue = decimalx.RoundQ7(g.CombinedValue.Add(m.Value))
			if m.ChainPriority < g.MinPriority {
				g.MinPriority = m.ChainPriority
			}
			if m.CreatedAt.Before(g.EarliestCreated) {
				g.EarliestCreated = m.CreatedAt
			}
			continue
		}

		index[keyStr] = len(groups)
		groups = append(groups, domain.Group{
			Key:             key,
			ModifierIDs:     []string{m.ID},
			CombinedValue:   decimalx.RoundQ7(m.Value),
			MinPriority:     m.ChainPriority,
			EarliestCreated: m.CreatedAt,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if ra, rb := applicationRank[a.Key.ApplicationType], applicationRank[b.Key.ApplicationType]; ra != rb {
			return ra < rb
		}
		if ra, rb := categoryRank[a.Key.Category], categoryRank[b.Key.Category]; ra != rb {
			return ra < rb
		}
		if ra, rb := kindRank[a.Key.Kind], kindRank[b.Key.Kind]; ra != rb {
			return ra < rb
		}
		if a.MinPriority != b.MinPriority {
			return a.MinPriority < b.MinPriority
		}
		if !a.EarliestCreated.Equal(b.EarliestCreated) {
			return a.EarliestCreated.Before(b.EarliestCreated)
		}
		return groupKeyString(a.Key) < groupKeyString(b.Key)
	})

	return groups
}

func groupKeyString(k domain.GroupKey) string {
	return fmt.Sprintf("%s|%s|%s|%t|%s|%s|%s|%s",
		k.ResolvedTaxSetting, k.Kind, k.Category, k.AffectsQuantity,
		k.CostPercentage, k.DisplayMode, k.ApplicationType, k.ProductID)
}
