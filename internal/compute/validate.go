// Package compute implements the pure, side-effect-free pricing
// computation: validation, dependency resolution, rule filtering,
// 8-attribute grouping, group application, tax computation, and
// checksumming. No I/O, no clocks, no randomness, no input mutation.
package compute

import (
	"fmt"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// Ceilings are the resource limits enforced by the validation floor.
type Ceilings struct {
	MaxLineItems     int
	MaxModifiers     int
	MaxGroups        int
	HardMaxLineItems int
	HardMaxModifiers int
	HardMaxGroups    int
	MaxDependencyDepth int
}

// DefaultCeilings returns soft limits of 5000 line items, 1000 modifiers
// and 100 groups, and hard ceilings of 2000 modifiers and 250 groups. Line
// items have no separate hard ceiling: HardMaxLineItems equals the soft
// limit of 5000.
func DefaultCeilings() Ceilings {
	return Ceilings{
		MaxLineItems:       5000,
		MaxModifiers:       1000,
		MaxGroups:          100,
		HardMaxLineItems:   5000,
		HardMaxModifiers:   2000,
		HardMaxGroups:      250,
		MaxDependencyDepth: 10,
	}
}

// validateFloor rejects frozen input that violates the resource ceilings
// or carries structurally invalid data. The group ceilings are enforced
// later once groups have actually been constructed, since the group
// count is not known until grouping completes.
func validateFloor(in *domain.FrozenInput, ceilings Ceilings) error {
	if len(in.LineItems) > ceilings.HardMaxLineItems {
		return apperrors.ResourceLimit(fmt.Sprintf("line items %d exceed hard ceiling %d", len(in.LineItems), ceilings.HardMaxLineItems))
	}
	if len(in.Modifiers) > ceilings.HardMaxModifiers {
		return apperrors.ResourceLimit(fmt.Sprintf("modifiers %d exceed hard ceiling %d", len(in.Modifiers), ceilings.HardMaxModifiers))
	}
	if len(in.Modifiers) > ceilings.MaxModifiers {
		return apperrors.ResourceLimit(fmt.Sprintf("modifiers %d exceed ceiling %d", len(in.Modifiers), ceilings.MaxModifiers))
	}
	if in.SchemaVersion == "" {
		return apperrors.InvalidInput("missing schemaVersion")
	}

	var violations []apperrors.Violation
	seenLine := map[string]struct{}{}
	for _, li := range in.LineItems {
		if _, dup := seenLine[li.ID]; dup {
			violations = append(violations, apperrors.Violation{Field: "lineItems." + li.ID, Message: "duplicate line item id"})
			continue
		}
		seenLine[li.ID] = struct{}{}
		if li.Quantity.IsNegative() {
			violations = append(violations, apperrors.Violation{Field: "lineItems." + li.ID + ".quantity", Message: "quantity must be >= 0"})
		}
	}

	seenMod := map[string]struct{}{}
	for _, m := range in.Modifiers {
		if _, dup := seenMod[m.ID]; dup {
			violations = append(violations, apperrors.Violation{Field: "modifiers." + m.ID, Message: "duplicate modifier id"})
			continue
		}
		seenMod[m.ID] = struct{}{}
		if m.LineItemID != "" {
			if _, ok := seenLine[m.LineItemID]; !ok {
				violations = append(violations, apperrors.Violation{Field: "modifiers." + m.ID + ".lineItemId", Message: "references unknown line item"})
			}
		}
	}

	for _, d := range in.Dependencies {
		if _, ok := seenMod[d.ModifierID]; !ok {
			violations = append(violations, apperrors.Violation{Field: "dependencies", Message: fmt.Sprintf("modifierId %s not found", d.ModifierID)})
		}
		if _, ok := seenMod[d.DependsOn]; !ok {
			violations = append(violations, apperrors.Violation{Field: "dependencies", Message: fmt.Sprintf("dependsOn %s not found", d.DependsOn)})
		}
	}

	if len(violations) > 0 {
		return apperrors.InvalidInput("input failed the validation floor", violations...)
	}
	return nil
}
