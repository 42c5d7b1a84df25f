// Package commit performs the idempotent transactional write of a
// calculation result, its audit trail, and its outbox announcement, then
// drives the background outbox publisher and best-effort webhook fan-out.
package commit

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/canonical"
	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/storage"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

// Writer performs the commit stage's one transactional write.
type Writer struct {
	db      *gorm.DB
	log     *logging.Logger
	metrics *metrics.PipelineMetrics
	version string
}

func NewWriter(db *storage.Database, log *logging.Logger, m *metrics.PipelineMetrics, version string) *Writer {
	return &Writer{db: db.DB, log: log, metrics: m, version: version}
}

// CommitOutcome reports whether the write actually ran or replayed an
// already-committed checksum.
type CommitOutcome struct {
	Replayed bool
}

// advisoryLockKey hashes a proposal id to the 32-bit key used for a
// postgres transaction-scoped advisory lock (pg_advisory_xact_lock),
// serializing commits per proposal.
func advisoryLockKey(proposalID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(proposalID))
	return h.Sum32()
}

// Commit writes result under a per-proposal advisory lock: checks for an
// existing committed row at the same checksum (idempotency replay), then
// upserts the result row, inserts the audit rows, and enqueues one PENDING
// outbox row, all within one transaction.
func (w *Writer) Commit(proposalID, tenant string, result *domain.Result, startedAt, finishedAt time.Time, phaseTimings map[string]float64) (*CommitOutcome, error) {
	lockKey := advisoryLockKey(proposalID)
	outcome := &CommitOutcome{}

	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", lockKey).Error; err != nil {
			return apperrors.DatabaseError("acquire advisory lock", err)
		}

		var existing storage.CalculationResultRow
		err := tx.Where("proposal_id = ? AND checksum = ?", proposalID, result.Checksum).First(&existing).Error
		if err == nil {
			outcome.Replayed = true
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return apperrors.DatabaseError("idempotency lookup", err)
		}

		resultJSON := canonical.Encode(result.CanonicalValue())

		row := storage.CalculationResultRow{
			ProposalID:           proposalID,
			Tenant:               tenant,
			Checksum:             result.Checksum,
			Version:              w.version,
			SubtotalQ2:           result.SubtotalQ2.String(),
			ModifierTotalQ2:      result.ModifierTotalQ2.String(),
			RetailTaxQ2:          result.RetailTaxQ2.String(),
			CustomerGrandTotalQ2: result.CustomerGrandTotalQ2.String(),
			ResultJSON:           resultJSON,
			UpdatedAt:            time.Now().UTC(),
		}
		if result.UseTaxQ2 != nil {
			row.UseTaxQ2 = result.UseTaxQ2.String()
		}
		if result.InternalGrandTotalQ2 != nil {
			row.InternalGrandTotalQ2 = result.InternalGrandTotalQ2.String()
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"checksum", "version", "subtotal_q2", "modifier_total_q2", "retail_tax_q2", "use_tax_q2", "customer_grand_total_q2", "internal_grand_total_q2", "result_json", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return apperrors.DatabaseError("upsert calculation result", err)
		}

		calcID := uuid.NewString()
		if err := writeAudit(tx, calcID, proposalID, tenant, w.version, result, startedAt, finishedAt, phaseTimings); err != nil {
			return err
		}

		if err := enqueueOutbox(tx, proposalID, result); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		if _, ok := err.(*apperrors.CalcError); ok {
			return nil, err
		}
		return nil, apperrors.DatabaseError("commit transaction", err)
	}

	if outcome.Replayed {
		w.metrics.IdempotencyReplays.Inc()
	} else {
		w.metrics.OutboxPending.Inc()
	}
	return outcome, nil
}

func writeAudit(tx *gorm.DB, calcID, proposalID, tenant, version string, result *domain.Result, startedAt, finishedAt time.Time, phaseTimings map[string]float64) error {
	timingsJSON, _ := json.Marshal(phaseTimings)

	audit := storage.CalcAuditRow{
		CalcID:               calcID,
		ProposalID:           proposalID,
		Tenant:               tenant,
		Version:              version,
		StartedAt:            startedAt,
		FinishedAt:           finishedAt,
		PhaseTimingsJSON:     timingsJSON,
		SubtotalQ7:           result.SubtotalQ7.String(),
		ModifierTotalQ7:      result.ModifierTotalQ7.String(),
		TaxableBaseQ7:        result.TaxableBaseQ7.String(),
		NonTaxableQ7:         result.NonTaxableBaseQ7.String(),
		RetailTaxQ7:          result.RetailTaxQ7.String(),
		CustomerGrandTotalQ7: result.CustomerGrandTotalQ7.String(),
		GrandTotalQ2:         result.CustomerGrandTotalQ2.String(),
		TaxMode:              string(result.TaxMode),
		EngineVersion:        version,
		Checksum:             result.Checksum,
		CreatedAt:            time.Now().UTC(),
	}
	if result.UseTaxQ7 != nil {
		audit.UseTaxQ7 = result.UseTaxQ7.String()
	}
	if err := tx.Create(&audit).Error; err != nil {
		return apperrors.DatabaseError("insert audit row", err)
	}

	for _, adj := range result.Adjustments {
		attrs, _ := json.Marshal(adj.GroupKey)
		modIDs, _ := json.Marshal(adj.ModifierIDs)
		group := storage.CalcAuditGroupRow{
			CalcID:          calcID,
			GroupKey:        groupKeyString(adj.GroupKey),
			AttributesJSON:  attrs,
			CombinedValue:   sumCombinedValue(adj),
			AdjustmentQ7:    adj.AmountQ7.String(),
			ModifierIDsJSON: modIDs,
		}
		if err := tx.Create(&group).Error; err != nil {
			return apperrors.DatabaseError("insert audit group row", err)
		}
	}
	return nil
}

func sumCombinedValue(adj domain.Adjustment) string {
	// The audit group's combined value mirrors the applied amount. The
	// attributes column holds the group key only; the source modifiers'
	// individual values are not recorded.
	return adj.AmountQ7.String()
}

func groupKeyString(k domain.GroupKey) string {
	return fmt.Sprintf("%s|%s|%s|%t|%s|%s|%s|%s",
		k.ResolvedTaxSetting, k.Kind, k.Category, k.AffectsQuantity,
		k.CostPercentage, k.DisplayMode, k.ApplicationType, k.ProductID)
}

func enqueueOutbox(tx *gorm.DB, proposalID string, result *domain.Result) error {
	payload, err := json.Marshal(map[string]interface{}{
		"proposalId":         proposalID,
		"checksum":           result.Checksum,
		"customerGrandTotal": result.CustomerGrandTotalQ2.String(),
	})
	if err != nil {
		return apperrors.Internal("marshal outbox payload", err)
	}

	row := storage.OutboxEventRow{
		ID:          uuid.NewString(),
		EventType:   "calculation.completed",
		AggregateID: proposalID,
		Payload:     payload,
		Status:      string(domain.OutboxPending),
		NextRetryAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return apperrors.DatabaseError("insert outbox row", err)
	}
	return nil
}
