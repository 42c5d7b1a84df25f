package compute

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/decimalx"
	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/fingerprint"
	"github.com/proposalcore/pricing-engine/internal/ruleeval"
)

// Options configures one invocation of Compute.
type Options struct {
	Ceilings    Ceilings
	RuleLimits  ruleeval.Limits
	WallBudget  time.Duration
}

// DefaultOptions matches the ceilings and rule limits named in §4.3/§5.
func DefaultOptions() Options {
	return Options{
		Ceilings:   DefaultCeilings(),
		RuleLimits: ruleeval.DefaultLimits(),
		WallBudget: 5 * time.Second,
	}
}

// Compute is the pure function Compute(frozenInput) -> Result. It performs
// no I/O, reads no clock other than to enforce the wall-clock ceiling
// around its own execution, and never mutates its input.
func Compute(in *domain.FrozenInput, opts Options) (*domain.Result, error) {
	start := time.Now()
	res, err := compute(in, opts)
	if time.Since(start) > opts.WallBudget {
		return nil, apperrors.Timeout("pure compute")
	}
	return res, err
}

func compute(in *domain.FrozenInput, opts Options) (*domain.Result, error) {
	if err := validateFloor(in, opts.Ceilings); err != nil {
		return nil, err
	}

	lineByID := make(map[string]domain.LineItem, len(in.LineItems))
	for _, li := range in.LineItems {
		lineByID[li.ID] = li
	}

	// Step 1: base subtotal and taxable/non-taxable partition.
	subtotalQ7 := decimal.Zero
	taxableQ7 := decimal.Zero
	nonTaxableQ7 := decimal.Zero
	for _, li := range in.LineItems {
		amount := decimalx.RoundQ7(li.UnitPrice.Mul(li.Quantity))
		subtotalQ7 = decimalx.RoundQ7(subtotalQ7.Add(amount))
		if li.TaxSetting == domain.TaxSettingTaxable {
			taxableQ7 = decimalx.RoundQ7(taxableQ7.Add(amount))
		} else {
			nonTaxableQ7 = decimalx.RoundQ7(nonTaxableQ7.Add(amount))
		}
	}

	// Step 3: dependency resolution.
	survivors, rejectedDeps, err := resolveDependencies(in.Modifiers, in.Dependencies, opts.Ceilings.MaxDependencyDepth)
	if err != nil {
		return nil, err
	}

	// Step 4: rule filtering.
	evalCtx := &evalContext{baseSubtotalQ7: subtotalQ7, lineItems: in.LineItems, proposalID: in.ProposalID, tenant: in.Tenant}
	survivors, rejectedRules := filterByRules(survivors, evalCtx, opts.RuleLimits)

	rejected := append(rejectedDeps, rejectedRules...)

	// Step 5+6: 8-attribute grouping and deterministic ordering.
	groups := groupModifiers(survivors, lineByID)
	if len(groups) > opts.Ceilings.HardMaxGroups {
		return nil, apperrors.ResourceLimit(fmt.Sprintf("groups %d exceed hard ceiling %d", len(groups), opts.Ceilings.HardMaxGroups))
	}
	if len(groups) > opts.Ceilings.MaxGroups {
		return nil, apperrors.ResourceLimit(fmt.Sprintf("groups %d exceed ceiling %d", len(groups), opts.Ceilings.MaxGroups))
	}

	byModifierID := make(map[string]domain.Modifier, len(survivors))
	for _, m := range survivors {
		byModifierID[m.ID] = m
	}

	var preTax, postTax []domain.Group
	for _, g := range groups {
		if g.Key.ApplicationType == domain.ApplicationPostTax {
			postTax = append(postTax, g)
		} else {
			preTax = append(preTax, g)
		}
	}

	partitions := &partitionState{taxableQ7: taxableQ7, nonTaxableQ7: nonTaxableQ7}
	currentUnitPrice := map[string]decimal.Decimal{}

	// Step 7: apply pre-tax groups.
	preAdjustments, err := applyGroups(preTax, byModifierID, in.LineItems, currentUnitPrice, partitions)
	if err != nil {
		return nil, err
	}

	runningQ7 := subtotalQ7
	for _, a := range preAdjustments {
		runningQ7 = decimalx.RoundQ7(runningQ7.Add(a.AmountQ7))
	}

	// Step 8: tax computation, using the post-pre-tax taxable partition.
	tax := computeTax(in.Config, partitions.taxableQ7, in.LineItems)

	// Step 9: apply post-tax groups. These never reopen the tax base
	// (Open Question (b)): partitions is not consulted by the tax
	// computation again, so crediting it here only keeps the partition
	// state internally consistent for audit purposes.
	postAdjustments, err := applyGroups(postTax, byModifierID, in.LineItems, currentUnitPrice, partitions)
	if err != nil {
		return nil, err
	}
	for _, a := range postAdjustments {
		runningQ7 = decimalx.RoundQ7(runningQ7.Add(a.AmountQ7))
	}

	modifierTotalQ7 := decimalx.RoundQ7(runningQ7.Sub(subtotalQ7))
	customerGrandTotalQ7 := decimalx.RoundQ7(runningQ7.Add(tax.RetailTaxQ7))

	result := &domain.Result{
		SubtotalQ2:           decimalx.RoundQ2(subtotalQ7),
		ModifierTotalQ2:      decimalx.RoundQ2(modifierTotalQ7),
		RetailTaxQ2:          decimalx.RoundQ2(tax.RetailTaxQ7),
		CustomerGrandTotalQ2: decimalx.RoundQ2(customerGrandTotalQ7),

		SubtotalQ7:           subtotalQ7,
		TaxableBaseQ7:        partitions.taxableQ7,
		NonTaxableBaseQ7:     partitions.nonTaxableQ7,
		ModifierTotalQ7:      modifierTotalQ7,
		RetailTaxQ7:          tax.RetailTaxQ7,
		CustomerGrandTotalQ7: customerGrandTotalQ7,

		TaxMode:           in.Config.Mode,
		JurisdictionTaxes: tax.JurisdictionTaxes,

		Adjustments: append(preAdjustments, postAdjustments...),
		Rejected:    rejected,
	}

	if tax.UseTaxQ7 != nil {
		useTaxQ2 := decimalx.RoundQ2(*tax.UseTaxQ7)
		result.UseTaxQ2 = &useTaxQ2
		result.UseTaxQ7 = tax.UseTaxQ7

		internalQ7 := decimalx.RoundQ7(customerGrandTotalQ7.Add(*tax.UseTaxQ7))
		internalQ2 := decimalx.RoundQ2(internalQ7)
		result.InternalGrandTotalQ2 = &internalQ2
	}

	// Step 11: checksum over the canonical encoding.
	result.Checksum = fingerprint.Of(result)

	return result, nil
}
