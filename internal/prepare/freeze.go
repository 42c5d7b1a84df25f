package prepare

import (
	"time"

	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/fingerprint"
)

// freeze compiles each modifier's raw rule tree and produces the
// deep-immutable FrozenInput consumed by the compute stage. Every slice is
// a fresh copy so no caller can mutate the frozen view through a reference
// it still holds.
func freeze(snap *Snapshot, compiler *RuleCompiler) (*domain.FrozenInput, error) {
	lineItems := append([]domain.LineItem(nil), snap.LineItems...)
	modifiers := append([]domain.Modifier(nil), snap.Modifiers...)
	deps := append([]domain.Dependency(nil), snap.Dependencies...)
	cfg := snap.Config
	cfg.Jurisdictions = append([]domain.Jurisdiction(nil), snap.Config.Jurisdictions...)

	for i := range modifiers {
		raw := snap.RawRules[modifiers[i].ID]
		node, err := compiler.Compile(snap.Tenant, modifiers[i].ID, raw)
		if err != nil {
			return nil, err
		}
		modifiers[i].CompiledRule = node
	}

	in := &domain.FrozenInput{
		ProposalID:    snap.ProposalID,
		Tenant:        snap.Tenant,
		SchemaVersion: snap.SchemaVersion,
		LineItems:     lineItems,
		Modifiers:     modifiers,
		Dependencies:  deps,
		Config:        cfg,
	}
	in.Fingerprint = fingerprintOf(in)
	return in, nil
}

func fingerprintOf(in *domain.FrozenInput) string {
	return fingerprint.Of(map[string]interface{}{
		"proposalId":    in.ProposalID,
		"tenant":        in.Tenant,
		"schemaVersion": in.SchemaVersion,
		"lineItems":     canonicalLineItems(in.LineItems),
		"modifiers":     canonicalModifiers(in.Modifiers),
		"dependencies":  canonicalDependencies(in.Dependencies),
		"config":        canonicalTaxConfig(in.Config),
	})
}

// canonicalLineItems renders every field of each line item, not a
// hand-picked subset, so two inputs that differ only in a field omitted
// here would otherwise collide on the same fingerprint.
func canonicalLineItems(items []domain.LineItem) []interface{} {
	out := make([]interface{}, len(items))
	for i, li := range items {
		out[i] = map[string]interface{}{
			"id":                 li.ID,
			"unitPrice":          li.UnitPrice,
			"quantity":           li.Quantity,
			"cost":               li.Cost,
			"hasCost":            li.HasCost,
			"taxSetting":         string(li.TaxSetting),
			"useTaxEligible":     li.UseTaxEligible,
			"vendorTaxCollected": li.VendorTaxCollected,
		}
	}
	return out
}

// canonicalModifiers renders every field of each modifier that determines
// its pricing effect. CompiledRule is excluded: it is derived from the raw
// rule text, which callers supply out of band and which already
// determines the compiled AST deterministically.
func canonicalModifiers(mods []domain.Modifier) []interface{} {
	out := make([]interface{}, len(mods))
	for i, m := range mods {
		out[i] = map[string]interface{}{
			"id":                  m.ID,
			"kind":                string(m.Kind),
			"value":               m.Value,
			"taxSetting":          string(m.TaxSetting),
			"category":            m.Category,
			"affectsQuantity":     m.AffectsQuantity,
			"costPercentage":      m.CostPercentage,
			"displayMode":         m.DisplayMode,
			"applicationType":     string(m.ApplicationType),
			"productId":           m.ProductID,
			"chainPriority":       m.ChainPriority,
			"lineItemId":          m.LineItemID,
			"createdAt":           m.CreatedAt.UTC().Format(time.RFC3339Nano),
			"missingCostStrategy": string(m.MissingCostStrategy),
		}
	}
	return out
}

func canonicalDependencies(deps []domain.Dependency) []interface{} {
	out := make([]interface{}, len(deps))
	for i, d := range deps {
		out[i] = map[string]interface{}{
			"modifierId": d.ModifierID,
			"dependsOn":  d.DependsOn,
			"type":       string(d.Type),
		}
	}
	return out
}

func canonicalTaxConfig(cfg domain.TaxConfig) map[string]interface{} {
	jurisdictions := make([]interface{}, len(cfg.Jurisdictions))
	for i, j := range cfg.Jurisdictions {
		jurisdictions[i] = map[string]interface{}{
			"code":  j.Code,
			"order": j.Order,
			"rate":  j.Rate,
		}
	}
	return map[string]interface{}{
		"mode":          string(cfg.Mode),
		"retailRate":    cfg.RetailRate,
		"useTaxRate":    cfg.UseTaxRate,
		"jurisdictions": jurisdictions,
		"schemaVersion": cfg.SchemaVersion,
	}
}
