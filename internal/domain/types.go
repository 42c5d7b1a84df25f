// Package domain defines the value types shared by every stage of the
// pricing pipeline: the raw request shape, the normalised and frozen
// input consumed by pure computation, and the result emitted from it.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/ruleeval"
)

// TaxSetting classifies a line item or a resolved modifier as taxable or
// not for the purpose of computing the retail tax base.
type TaxSetting string

const (
	TaxSettingTaxable    TaxSetting = "TAXABLE"
	TaxSettingNonTaxable TaxSetting = "NON_TAXABLE"
	TaxSettingInherit    TaxSetting = "inherit"
)

// ModifierKind selects which pricing formula a modifier applies.
type ModifierKind string

const (
	ModifierKindPercentage ModifierKind = "percentage"
	ModifierKindFixed      ModifierKind = "fixed"
	ModifierKindMargin     ModifierKind = "margin"
)

// ApplicationType places a modifier before or after tax computation.
type ApplicationType string

const (
	ApplicationPreTax  ApplicationType = "pre_tax"
	ApplicationPostTax ApplicationType = "post_tax"
)

// DependencyType names the edge kind in the modifier DAG.
type DependencyType string

const (
	DependencyRequires DependencyType = "REQUIRES"
	DependencyExcludes DependencyType = "EXCLUDES"
)

// TaxMode selects which tax regime a proposal computes under.
type TaxMode string

const (
	TaxModeRetail  TaxMode = "RETAIL"
	TaxModeUseTax  TaxMode = "USE_TAX"
	TaxModeMixed   TaxMode = "MIXED"
)

// MissingCostStrategy controls margin-modifier behaviour when a line
// item's cost is absent.
type MissingCostStrategy string

const (
	MissingCostSkip        MissingCostStrategy = "SKIP"
	MissingCostUseDefault  MissingCostStrategy = "USE_DEFAULT"
	MissingCostFail        MissingCostStrategy = "FAIL"
)

// LineItem is one priced unit of a proposal.
type LineItem struct {
	ID                 string
	UnitPrice          decimal.Decimal
	Quantity           decimal.Decimal
	Cost               decimal.Decimal
	HasCost            bool
	TaxSetting         TaxSetting
	UseTaxEligible     bool
	VendorTaxCollected bool
}

// Modifier adjusts the subtotal, either as a discount/fee/rebate/bonus or
// as a margin-target repricing of its referenced line item.
type Modifier struct {
	ID              string
	Kind            ModifierKind
	Value           decimal.Decimal
	TaxSetting      TaxSetting
	Category        string
	AffectsQuantity bool
	CostPercentage  decimal.Decimal
	DisplayMode     string
	ApplicationType ApplicationType
	ProductID       string
	ChainPriority   int
	LineItemID      string
	CreatedAt       time.Time

	MissingCostStrategy MissingCostStrategy

	// CompiledRule is the safe-evaluator AST compiled during preparation.
	// Nil means the modifier has no conditional gate and always applies.
	CompiledRule *ruleeval.Node
}

// Dependency is one directed edge in the modifier DAG.
type Dependency struct {
	ModifierID string
	DependsOn  string
	Type       DependencyType
}

// Jurisdiction is one retail-tax jurisdiction entry, applied additively.
type Jurisdiction struct {
	Code  string
	Order int
	Rate  decimal.Decimal
}

// TaxConfig describes how retail and use tax are computed for a proposal.
type TaxConfig struct {
	Mode          TaxMode
	RetailRate    decimal.Decimal
	UseTaxRate    decimal.Decimal
	Jurisdictions []Jurisdiction
	SchemaVersion string
}

// GroupKey is the 8-attribute tuple that collapses equal-keyed modifiers
// into one applied group.
type GroupKey struct {
	ResolvedTaxSetting TaxSetting
	Kind               ModifierKind
	Category           string
	AffectsQuantity    bool
	CostPercentage     string
	DisplayMode        string
	ApplicationType    ApplicationType
	ProductID          string // "null" sentinel when absent
}

// Group is a synthetic aggregate of modifiers sharing a GroupKey.
type Group struct {
	Key           GroupKey
	ModifierIDs   []string
	CombinedValue decimal.Decimal
	MinPriority   int
	EarliestCreated time.Time
}

// LineAllocation is one line item's share of a group's adjustment.
type LineAllocation struct {
	LineItemID string
	AmountQ7   decimal.Decimal
}

// Adjustment is the applied effect of one group, with per-line detail.
type Adjustment struct {
	GroupKey           GroupKey
	ModifierIDs        []string
	AmountQ7           decimal.Decimal
	AmountQ2           decimal.Decimal
	PerLineAllocations []LineAllocation
}

// RejectedModifier records why a modifier did not survive resolution.
type RejectedModifier struct {
	ModifierID string
	Reason     string // missing_requirement | excluded_by:<id> | rule_failed
}

// JurisdictionTax is one jurisdiction's computed share of retail tax.
type JurisdictionTax struct {
	Code   string
	Amount decimal.Decimal
}

// Result is the pure-stage output: the canonical, checksummed calculation.
type Result struct {
	SubtotalQ2           decimal.Decimal
	ModifierTotalQ2       decimal.Decimal
	RetailTaxQ2           decimal.Decimal
	CustomerGrandTotalQ2  decimal.Decimal
	UseTaxQ2              *decimal.Decimal
	InternalGrandTotalQ2  *decimal.Decimal

	SubtotalQ7           decimal.Decimal
	TaxableBaseQ7        decimal.Decimal
	NonTaxableBaseQ7     decimal.Decimal
	ModifierTotalQ7      decimal.Decimal
	RetailTaxQ7          decimal.Decimal
	UseTaxQ7             *decimal.Decimal
	CustomerGrandTotalQ7 decimal.Decimal

	TaxMode          TaxMode
	JurisdictionTaxes []JurisdictionTax

	Adjustments []Adjustment
	Rejected    []RejectedModifier

	Checksum string
}

// CanonicalValue implements canonical.Canonicalizable.
func (r *Result) CanonicalValue() interface{} {
	adjustments := make([]interface{}, len(r.Adjustments))
	for i, a := range r.Adjustments {
		allocs := make([]interface{}, len(a.PerLineAllocations))
		for j, al := range a.PerLineAllocations {
			allocs[j] = map[string]interface{}{
				"lineItemId": al.LineItemID,
				"amountQ7":   al.AmountQ7,
			}
		}
		modIDs := make([]interface{}, len(a.ModifierIDs))
		for j, id := range a.ModifierIDs {
			modIDs[j] = id
		}
		adjustments[i] = map[string]interface{}{
			"resolvedTaxSetting": string(a.GroupKey.ResolvedTaxSetting),
			"kind":               string(a.GroupKey.Kind),
			"category":           a.GroupKey.Category,
			"affectsQuantity":    a.GroupKey.AffectsQuantity,
			"costPercentage":     a.GroupKey.CostPercentage,
			"displayMode":        a.GroupKey.DisplayMode,
			"applicationType":    string(a.GroupKey.ApplicationType),
			"productId":          a.GroupKey.ProductID,
			"modifierIds":        modIDs,
			"amountQ2":           a.AmountQ2,
			"perLineAllocations": allocs,
		}
	}

	m := map[string]interface{}{
		"subtotal":           r.SubtotalQ2,
		"modifierTotal":      r.ModifierTotalQ2,
		"retailTax":          r.RetailTaxQ2,
		"customerGrandTotal": r.CustomerGrandTotalQ2,
		"taxMode":            string(r.TaxMode),
		"adjustments":        adjustments,
	}
	if r.UseTaxQ2 != nil {
		m["useTax"] = *r.UseTaxQ2
	}
	if r.InternalGrandTotalQ2 != nil {
		m["internalGrandTotal"] = *r.InternalGrandTotalQ2
	}
	return m
}

// Delta describes a partial update applied to a cached frozen input.
type DeltaType string

const (
	DeltaModifierOnly DeltaType = "MODIFIER_ONLY"
	DeltaLineItem     DeltaType = "LINE_ITEM"
	DeltaFull         DeltaType = "FULL"
)

type Delta struct {
	Type              DeltaType
	ChangedLineItems  []LineItem
	ChangedModifiers  []Modifier
	RemovedLineItemIDs []string
	RemovedModifierIDs []string
}

// CalculateRequest is the external Compute RPC input (§6).
type CalculateRequest struct {
	ProposalID   string
	Tenant       string
	LineItems    []LineItem
	Modifiers    []Modifier
	Dependencies []Dependency
	Rules        map[string]string // modifierID -> raw JSON rule tree (pre-compile)
	Config       TaxConfig
	Changes      *Delta
}

// FrozenInput is the deep-immutable, normalised input produced by
// preparation and consumed only by the pure compute stage. Once
// constructed no field is ever mutated; callers must treat every slice
// as read-only.
type FrozenInput struct {
	ProposalID   string
	Tenant       string
	SchemaVersion string
	LineItems    []LineItem
	Modifiers    []Modifier
	Dependencies []Dependency
	Config       TaxConfig
	Fingerprint  string
}

// OutboxStatus is the lifecycle state of one outbox row.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxCompleted  OutboxStatus = "COMPLETED"
	OutboxDeadLetter OutboxStatus = "DEAD_LETTER"
)

// OutboxRow is one transactional-outbox staging entry.
type OutboxRow struct {
	ID          string
	EventType   string
	AggregateID string
	Payload     []byte
	Metadata    []byte
	Status      OutboxStatus
	RetryCount  int
	NextRetryAt time.Time
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Error       string
}

// AuditGroup is one group's audit detail row.
type AuditGroup struct {
	CalcID        string
	GroupKey      string
	Attributes    []byte
	CombinedValue decimal.Decimal
	AdjustmentQ7  decimal.Decimal
	ModifierIDs   []byte
}

// AuditRow is the one-row-per-successful-computation audit trail.
type AuditRow struct {
	CalcID               string
	ProposalID           string
	Tenant               string
	Version              string
	StartedAt            time.Time
	FinishedAt            time.Time
	PhaseTimings         []byte
	SubtotalQ7           decimal.Decimal
	ModifierTotalQ7      decimal.Decimal
	TaxableBaseQ7        decimal.Decimal
	NonTaxableQ7         decimal.Decimal
	RetailTaxQ7          decimal.Decimal
	UseTaxQ7             *decimal.Decimal
	CustomerGrandTotalQ7 decimal.Decimal
	GrandTotalQ2         decimal.Decimal
	TaxMode              TaxMode
	EngineVersion        string
	Checksum             string
	Groups               []AuditGroup
}
