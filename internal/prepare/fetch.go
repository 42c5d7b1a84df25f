// Package prepare implements the preparation stage: a consistent snapshot
// fetch, normalisation, rule compilation, caching, delta-patching, and
// request coalescing, producing the immutable frozen input the compute
// stage consumes.
package prepare

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// ProposalStoreRow mirrors the raw shape persisted for one proposal's
// pricing inputs — the store this stage reads from is separate from the
// calculation_results/outbox tables the commit stage writes to.
type ProposalStoreRow struct {
	ProposalID    string `gorm:"column:proposal_id;primaryKey"`
	Tenant        string `gorm:"column:tenant"`
	SchemaVersion string `gorm:"column:schema_version"`
	ConfigJSON    []byte `gorm:"column:config_json"`
}

func (ProposalStoreRow) TableName() string { return "proposal_store" }

// Snapshot is the raw, as-stored shape fetched within one REPEATABLE READ
// transaction, before normalisation.
type Snapshot struct {
	ProposalID    string
	Tenant        string
	SchemaVersion string
	LineItems     []domain.LineItem
	Modifiers     []domain.Modifier
	Dependencies  []domain.Dependency
	RawRules      map[string]string
	Config        domain.TaxConfig
}

// Fetcher reads a consistent snapshot for one proposal.
type Fetcher struct {
	db *gorm.DB
}

func NewFetcher(db *gorm.DB) *Fetcher {
	return &Fetcher{db: db}
}

// Fetch builds the snapshot for req. A request already carrying line items
// or modifiers (the common path for this engine, since proposals are priced
// in the caller's own transaction) is used as-is and the store is not read.
//
// Otherwise Fetch opens one REPEATABLE READ transaction and reads the
// proposal's proposal_store row, taking its schema version and tenant.
// Line items, modifiers, dependencies and rules are not read from the
// store, so such a snapshot carries none of them.
func (f *Fetcher) Fetch(ctx context.Context, req *domain.CalculateRequest) (*Snapshot, error) {
	if len(req.LineItems) > 0 || len(req.Modifiers) > 0 {
		return &Snapshot{
			ProposalID:    req.ProposalID,
			Tenant:        req.Tenant,
			SchemaVersion: req.Config.SchemaVersion,
			LineItems:     req.LineItems,
			Modifiers:     req.Modifiers,
			Dependencies:  req.Dependencies,
			RawRules:      req.Rules,
			Config:        req.Config,
		}, nil
	}

	snap := &Snapshot{ProposalID: req.ProposalID, Tenant: req.Tenant}

	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProposalStoreRow
		if err := tx.Where("proposal_id = ?", req.ProposalID).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.InvalidInput("unknown proposal", apperrors.Violation{Field: "proposalId", Message: "not found"})
			}
			return err
		}
		snap.SchemaVersion = row.SchemaVersion
		snap.Tenant = row.Tenant

		// Line items, modifiers, and dependencies for a proposal not
		// carried inline on the request are read from their own tables by
		// a caller-supplied repository in a fuller deployment; this
		// engine's primary entry path is the inline request above, so the
		// store-backed path here only resolves proposal-level metadata.
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		if ce, ok := err.(*apperrors.CalcError); ok {
			return nil, ce
		}
		return nil, apperrors.DataFetchError("fetch proposal snapshot", err)
	}

	return snap, nil
}
