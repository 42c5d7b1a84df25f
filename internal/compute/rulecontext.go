package compute

import (
	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/ruleeval"
)

// evalContext implements ruleeval.Context over the base subtotal, the
// line items array, and computed aggregates. Unknown paths resolve to the
// Missing sentinel rather than erroring.
type evalContext struct {
	baseSubtotalQ7 decimal.Decimal
	lineItems      []domain.LineItem
	proposalID     string
	tenant         string
}

func (c *evalContext) Resolve(path []string) ruleeval.Value {
	if len(path) == 0 {
		return ruleeval.Missing
	}
	switch path[0] {
	case "computed":
		if len(path) == 2 && path[1] == "baseSubtotal" {
			return ruleeval.Value{Kind: ruleeval.ValueNumber, Num: c.baseSubtotalQ7}
		}
		if len(path) == 2 && path[1] == "lineItemCount" {
			return ruleeval.Value{Kind: ruleeval.ValueNumber, Num: decimal.NewFromInt(int64(len(c.lineItems)))}
		}
	case "proposal":
		if len(path) == 2 && path[1] == "id" {
			return ruleeval.Value{Kind: ruleeval.ValueString, Str: c.proposalID}
		}
	case "customer", "project", "running", "evaluationContext":
		// No concrete fields are populated from these namespaces by the
		// pure stage; they resolve to Missing until a caller supplies
		// them via a richer evaluation context in a future extension.
		return ruleeval.Missing
	}
	return ruleeval.Missing
}

// filterByRules evaluates each modifier's compiled rule. Modifiers whose
// rule evaluates false are discarded with rule_failed. A rule-evaluation
// error fails only that modifier (§7); it never aborts the computation.
func filterByRules(modifiers []domain.Modifier, ctx *evalContext, limits ruleeval.Limits) ([]domain.Modifier, []domain.RejectedModifier) {
	var kept []domain.Modifier
	var rejected []domain.RejectedModifier
	for _, m := range modifiers {
		ok, err := ruleeval.Eval(m.CompiledRule, ctx, limits)
		if err != nil {
			rejected = append(rejected, domain.RejectedModifier{ModifierID: m.ID, Reason: "rule_failed"})
			continue
		}
		if !ok {
			rejected = append(rejected, domain.RejectedModifier{ModifierID: m.ID, Reason: "rule_failed"})
			continue
		}
		kept = append(kept, m)
	}
	return kept, rejected
}

// resolveTaxSetting resolves a modifier's effective tax setting: inherit
// pulls from the referenced line item, defaulting to taxable when absent.
func resolveTaxSetting(m domain.Modifier, lineItems map[string]domain.LineItem) domain.TaxSetting {
	if m.TaxSetting != domain.TaxSettingInherit {
		return m.TaxSetting
	}
	if m.LineItemID != "" {
		if li, ok := lineItems[m.LineItemID]; ok {
			return li.TaxSetting
		}
	}
	return domain.TaxSettingTaxable
}
