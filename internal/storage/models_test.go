package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames_MatchMigrations(t *testing.T) {
	assert.Equal(t, "calculation_results", CalculationResultRow{}.TableName())
	assert.Equal(t, "calc_audit", CalcAuditRow{}.TableName())
	assert.Equal(t, "calc_audit_groups", CalcAuditGroupRow{}.TableName())
	assert.Equal(t, "outbox_events", OutboxEventRow{}.TableName())
}
