package storage

import "time"

// CalculationResultRow is the current-result row per proposal, upserted on
// every successful commit (ON CONFLICT proposal_id).
type CalculationResultRow struct {
	ProposalID           string `gorm:"column:proposal_id;primaryKey"`
	Tenant               string `gorm:"column:tenant;index"`
	Checksum             string `gorm:"column:checksum;index"`
	Version              string `gorm:"column:version"`
	SubtotalQ2           string `gorm:"column:subtotal_q2"`
	ModifierTotalQ2      string `gorm:"column:modifier_total_q2"`
	RetailTaxQ2          string `gorm:"column:retail_tax_q2"`
	UseTaxQ2             string `gorm:"column:use_tax_q2"`
	CustomerGrandTotalQ2 string `gorm:"column:customer_grand_total_q2"`
	InternalGrandTotalQ2 string `gorm:"column:internal_grand_total_q2"`
	ResultJSON           []byte `gorm:"column:result_json"`
	CreatedAt            time.Time `gorm:"column:created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (CalculationResultRow) TableName() string { return "calculation_results" }

// CalcAuditRow is the append-only audit trail: one row per committed
// computation, never updated after insert.
type CalcAuditRow struct {
	CalcID               string    `gorm:"column:calc_id;primaryKey"`
	ProposalID           string    `gorm:"column:proposal_id;index"`
	Tenant               string    `gorm:"column:tenant"`
	Version              string    `gorm:"column:version"`
	StartedAt            time.Time `gorm:"column:started_at"`
	FinishedAt           time.Time `gorm:"column:finished_at"`
	PhaseTimingsJSON     []byte    `gorm:"column:phase_timings_json"`
	SubtotalQ7           string    `gorm:"column:subtotal_q7"`
	ModifierTotalQ7      string    `gorm:"column:modifier_total_q7"`
	TaxableBaseQ7        string    `gorm:"column:taxable_base_q7"`
	NonTaxableQ7         string    `gorm:"column:non_taxable_q7"`
	RetailTaxQ7          string    `gorm:"column:retail_tax_q7"`
	UseTaxQ7             string    `gorm:"column:use_tax_q7"`
	CustomerGrandTotalQ7 string    `gorm:"column:customer_grand_total_q7"`
	GrandTotalQ2         string    `gorm:"column:grand_total_q2"`
	TaxMode              string    `gorm:"column:tax_mode"`
	EngineVersion        string    `gorm:"column:engine_version"`
	Checksum             string    `gorm:"column:checksum;index"`
	CreatedAt            time.Time `gorm:"column:created_at"`
}

func (CalcAuditRow) TableName() string { return "calc_audit" }

// CalcAuditGroupRow is one applied group's detail, linked to its parent
// audit row.
type CalcAuditGroupRow struct {
	ID            uint   `gorm:"column:id;primaryKey;autoIncrement"`
	CalcID        string `gorm:"column:calc_id;index"`
	GroupKey      string `gorm:"column:group_key"`
	AttributesJSON []byte `gorm:"column:attributes_json"`
	CombinedValue string `gorm:"column:combined_value"`
	AdjustmentQ7  string `gorm:"column:adjustment_q7"`
	ModifierIDsJSON []byte `gorm:"column:modifier_ids_json"`
}

func (CalcAuditGroupRow) TableName() string { return "calc_audit_groups" }

// OutboxEventRow is one transactional-outbox staging row, written in the
// same transaction as the calculation result it announces.
type OutboxEventRow struct {
	ID          string     `gorm:"column:id;primaryKey"`
	EventType   string     `gorm:"column:event_type"`
	AggregateID string     `gorm:"column:aggregate_id;index"`
	Payload     []byte     `gorm:"column:payload"`
	Metadata    []byte     `gorm:"column:metadata"`
	Status      string     `gorm:"column:status;index:idx_outbox_status_retry"`
	RetryCount  int        `gorm:"column:retry_count"`
	NextRetryAt time.Time  `gorm:"column:next_retry_at;index:idx_outbox_status_retry"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	Error       string     `gorm:"column:error"`
}

func (OutboxEventRow) TableName() string { return "outbox_events" }
