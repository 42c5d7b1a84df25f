package compute

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/decimalx"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// partitionState tracks the running taxable/non-taxable subtotal as
// pre-tax groups are applied in order. Percentage groups read and update
// it; fixed and margin groups update it but never read it for their own
// base (their amount is fixed by the modifier's own value/cost formula).
type partitionState struct {
	taxableQ7    decimal.Decimal
	nonTaxableQ7 decimal.Decimal
}

func (p *partitionState) base(setting domain.TaxSetting) decimal.Decimal {
	if setting == domain.TaxSettingTaxable {
		return p.taxableQ7
	}
	return p.nonTaxableQ7
}

func (p *partitionState) credit(setting domain.TaxSetting, amount decimal.Decimal) {
	if setting == domain.TaxSettingTaxable {
		p.taxableQ7 = decimalx.RoundQ7(p.taxableQ7.Add(amount))
	} else {
		p.nonTaxableQ7 = decimalx.RoundQ7(p.nonTaxableQ7.Add(amount))
	}
}

// applyGroups applies groups in the given order (pre-tax or post-tax),
// updating the partition state and per-line current unit prices (for
// margin chaining) and returning the resulting adjustments.
func applyGroups(
	groups []domain.Group,
	byModifierID map[string]domain.Modifier,
	lineItems []domain.LineItem,
	currentUnitPrice map[string]decimal.Decimal,
	partitions *partitionState,
) ([]domain.Adjustment, error) {
	lineByID := make(map[string]domain.LineItem, len(lineItems))
	for _, li := range lineItems {
		lineByID[li.ID] = li
	}

	var adjustments []domain.Adjustment
	for _, g := range groups {
		var (
			amountQ7 decimal.Decimal
			allocs   []domain.LineAllocation
			err      error
		)

		switch g.Key.Kind {
		case domain.ModifierKindPercentage:
			base := partitions.base(g.Key.ResolvedTaxSetting)
			amountQ7 = decimalx.RoundQ7(base.Mul(g.CombinedValue).Div(decimal.NewFromInt(100)))
			partitions.credit(g.Key.ResolvedTaxSetting, amountQ7)

		case domain.ModifierKindFixed:
			amountQ7, allocs = applyFixedGroup(g, byModifierID, lineItems, lineByID)
			partitions.credit(g.Key.ResolvedTaxSetting, amountQ7)

		case domain.ModifierKindMargin:
			amountQ7, allocs, err = applyMarginGroup(g, byModifierID, lineByID, currentUnitPrice)
			if err != nil {
				return nil, err
			}
			partitions.credit(g.Key.ResolvedTaxSetting, amountQ7)

		default:
			// Unrecognised kinds (e.g. future "quantity"/"cost_adjustment"
			// extensions named only in the ordering rubric) pass through
			// as a zero-amount group rather than aborting the computation.
			amountQ7 = decimal.Zero
		}

		adjustments = append(adjustments, domain.Adjustment{
			GroupKey:           g.Key,
			ModifierIDs:        g.ModifierIDs,
			AmountQ7:           amountQ7,
			AmountQ2:           decimalx.RoundQ2(amountQ7),
			PerLineAllocations: allocs,
		})
	}
	return adjustments, nil
}

// applyFixedGroup allocates the group's combined fixed amount proportionally
// across line items sharing the group's resolved tax setting, by each
// line's share of that partition's subtotal. The residual left by Q7
// rounding is assigned to the last allocation (by line item id, ascending)
// so allocations sum exactly to the group amount, per the pinned "last
// item" policy.
func applyFixedGroup(g domain.Group, byModifierID map[string]domain.Modifier, lineItems []domain.LineItem, lineByID map[string]domain.LineItem) (decimal.Decimal, []domain.LineAllocation) {
	amount := g.CombinedValue

	var eligible []domain.LineItem
	for _, li := range lineItems {
		if li.TaxSetting == g.Key.ResolvedTaxSetting {
			eligible = append(eligible, li)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	if len(eligible) == 0 {
		return decimalx.RoundQ7(amount), nil
	}

	base := decimal.Zero
	lineBases := make(map[string]decimal.Decimal, len(eligible))
	for _, li := range eligible {
		lb := decimalx.RoundQ7(li.UnitPrice.Mul(li.Quantity))
		lineBases[li.ID] = lb
		base = base.Add(lb)
	}

	allocs := make([]domain.LineAllocation, 0, len(eligible))
	if base.IsZero() {
		// No basis to allocate by share; split evenly, residual to last.
		share := decimalx.RoundQ7(amount.Div(decimal.NewFromInt(int64(len(eligible)))))
		running := decimal.Zero
		for i, li := range eligible {
			amt := share
			if i == len(eligible)-1 {
				amt = decimalx.RoundQ7(amount.Sub(running))
			} else {
				running = running.Add(amt)
			}
			allocs = append(allocs, domain.LineAllocation{LineItemID: li.ID, AmountQ7: amt})
		}
		return decimalx.RoundQ7(amount), allocs
	}

	running := decimal.Zero
	for i, li := range eligible {
		var amt decimal.Decimal
		if i == len(eligible)-1 {
			amt = decimalx.RoundQ7(amount.Sub(running))
		} else {
			share := lineBases[li.ID].Div(base)
			amt = decimalx.RoundQ7(amount.Mul(share))
			running = running.Add(amt)
		}
		allocs = append(allocs, domain.LineAllocation{LineItemID: li.ID, AmountQ7: amt})
	}
	return decimalx.RoundQ7(amount), allocs
}

// applyMarginGroup computes, for each modifier in the group, a target unit
// price that achieves the modifier's margin against its referenced line
// item's cost, then sums the resulting per-line adjustments.
func applyMarginGroup(g domain.Group, byModifierID map[string]domain.Modifier, lineByID map[string]domain.LineItem, currentUnitPrice map[string]decimal.Decimal) (decimal.Decimal, []domain.LineAllocation, error) {
	var total decimal.Decimal
	var allocs []domain.LineAllocation

	ids := append([]string(nil), g.ModifierIDs...)
	sort.Strings(ids)

	for _, modID := range ids {
		m := byModifierID[modID]
		margin := m.Value.Div(decimal.NewFromInt(100))
		if margin.IsNegative() || margin.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return decimal.Zero, nil, apperrors.InvalidMargin(m.ID, m.Value.String())
		}

		li, ok := lineByID[m.LineItemID]
		if !ok {
			continue
		}

		cost := li.Cost
		if !li.HasCost {
			switch m.MissingCostStrategy {
			case domain.MissingCostUseDefault:
				cost = decimalx.RoundQ7(li.UnitPrice.Mul(m.CostPercentage).Div(decimal.NewFromInt(100)))
			case domain.MissingCostFail:
				return decimal.Zero, nil, apperrors.InvalidInput("margin modifier references line item with no cost", apperrors.Violation{
					Field: "modifiers." + m.ID, Message: "missing cost and MissingCostStrategy=FAIL",
				})
			default: // SKIP
				continue
			}
		}

		denom := decimal.NewFromInt(1).Sub(margin)
		newPrice := decimalx.RoundQ7(cost.Div(denom))

		price := li.UnitPrice
		if p, ok := currentUnitPrice[li.ID]; ok {
			price = p
		}

		perUnit := decimalx.RoundQ7(newPrice.Sub(price))
		lineAmount := decimalx.RoundQ7(perUnit.Mul(li.Quantity))

		currentUnitPrice[li.ID] = newPrice
		total = decimalx.RoundQ7(total.Add(lineAmount))
		allocs = append(allocs, domain.LineAllocation{LineItemID: li.ID, AmountQ7: lineAmount})
	}

	sort.Slice(allocs, func(i, j int) bool { return allocs[i].LineItemID < allocs[j].LineItemID })
	return total, allocs, nil
}
