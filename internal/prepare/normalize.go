package prepare

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/decimalx"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// defaultChainPriority fills a modifier's missing chainPriority.
const defaultChainPriority = 999

// normalize applies the normalisation contract: canonical field order,
// stable sort, default-filling, and negative-zero/exponential cleanup.
// It never changes the multiset of IDs; it only canonicalises their
// representation and ordering.
func normalize(snap *Snapshot) (*Snapshot, error) {
	lineItems := append([]domain.LineItem(nil), snap.LineItems...)
	sort.Slice(lineItems, func(i, j int) bool { return lineItems[i].ID < lineItems[j].ID })
	for i := range lineItems {
		lineItems[i].UnitPrice = decimalx.RoundQ7(lineItems[i].UnitPrice)
		lineItems[i].Quantity = normalizeDecimal(lineItems[i].Quantity)
		lineItems[i].Cost = normalizeDecimal(lineItems[i].Cost)
		if lineItems[i].TaxSetting == "" {
			lineItems[i].TaxSetting = domain.TaxSettingTaxable
		}
	}

	modifiers := append([]domain.Modifier(nil), snap.Modifiers...)
	for i := range modifiers {
		if modifiers[i].ChainPriority == 0 {
			modifiers[i].ChainPriority = defaultChainPriority
		}
		if modifiers[i].ApplicationType == "" {
			modifiers[i].ApplicationType = domain.ApplicationPreTax
		}
		if modifiers[i].TaxSetting == "" {
			modifiers[i].TaxSetting = domain.TaxSettingInherit
		}
		modifiers[i].Value = normalizeDecimal(modifiers[i].Value)
		modifiers[i].CostPercentage = normalizeDecimal(modifiers[i].CostPercentage)
	}
	sort.SliceStable(modifiers, func(i, j int) bool {
		if modifiers[i].ChainPriority != modifiers[j].ChainPriority {
			return modifiers[i].ChainPriority < modifiers[j].ChainPriority
		}
		return modifiers[i].ID < modifiers[j].ID
	})

	seen := map[string]struct{}{}
	for _, m := range modifiers {
		if _, dup := seen[m.ID]; dup {
			return nil, apperrors.InvalidInput("duplicate modifier id", apperrors.Violation{Field: "modifiers." + m.ID, Message: "duplicate id"})
		}
		seen[m.ID] = struct{}{}
	}

	deps := append([]domain.Dependency(nil), snap.Dependencies...)
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].DependsOn != deps[j].DependsOn {
			return deps[i].DependsOn < deps[j].DependsOn
		}
		return deps[i].ModifierID < deps[j].ModifierID
	})

	cfg := snap.Config
	cfg.RetailRate = normalizeDecimal(cfg.RetailRate)
	cfg.UseTaxRate = normalizeDecimal(cfg.UseTaxRate)
	for i := range cfg.Jurisdictions {
		cfg.Jurisdictions[i].Rate = normalizeDecimal(cfg.Jurisdictions[i].Rate)
	}

	return &Snapshot{
		ProposalID:    snap.ProposalID,
		Tenant:        snap.Tenant,
		SchemaVersion: snap.SchemaVersion,
		LineItems:     lineItems,
		Modifiers:     modifiers,
		Dependencies:  deps,
		RawRules:      snap.RawRules,
		Config:        cfg,
	}, nil
}

// normalizeDecimal collapses negative zero to zero; decimal.Decimal never
// carries exponential notation internally, so no further expansion is
// needed once a value is parsed.
func normalizeDecimal(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}
