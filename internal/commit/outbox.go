package commit

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/proposalcore/pricing-engine/internal/broker"
	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/storage"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

// OutboxPublisher polls PENDING outbox rows and publishes them, retrying
// with exponential backoff and dead-lettering after MaxRetries.
type OutboxPublisher struct {
	db         *gorm.DB
	publisher  *broker.Publisher
	log        *logging.Logger
	metrics    *metrics.PipelineMetrics
	cfg        config.OutboxConfig
}

func NewOutboxPublisher(db *storage.Database, publisher *broker.Publisher, log *logging.Logger, m *metrics.PipelineMetrics, cfg config.OutboxConfig) *OutboxPublisher {
	return &OutboxPublisher{db: db.DB, publisher: publisher, log: log, metrics: m, cfg: cfg}
}

// Run polls on cfg.PollInterval until ctx is cancelled. Only one instance
// should run per process; the `FOR UPDATE SKIP LOCKED` claim makes it safe
// to run one instance per replica of the process too.
func (p *OutboxPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainOnce(ctx)
		}
	}
}

func (p *OutboxPublisher) drainOnce(ctx context.Context) {
	rows, err := p.claim(ctx)
	if err != nil {
		p.log.Error("outbox claim failed", zap.Error(err))
		return
	}
	for _, row := range rows {
		p.publishOne(ctx, row)
	}
}

// claim selects up to BatchSize rows that are due for a retry and marks
// them PROCESSING in the same transaction, using FOR UPDATE SKIP LOCKED so
// concurrent publisher instances never claim the same row.
func (p *OutboxPublisher) claim(ctx context.Context) ([]storage.OutboxEventRow, error) {
	var rows []storage.OutboxEventRow

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		err := tx.Raw(
			`SELECT * FROM outbox_events WHERE status = ? AND next_retry_at <= ? ORDER BY created_at ASC LIMIT ? FOR UPDATE SKIP LOCKED`,
			domain.OutboxPending, now, p.cfg.BatchSize,
		).Scan(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		return tx.Model(&storage.OutboxEventRow{}).Where("id IN ?", ids).
			Update("status", string(domain.OutboxProcessing)).Error
	})
	return rows, err
}

func (p *OutboxPublisher) publishOne(ctx context.Context, row storage.OutboxEventRow) {
	start := time.Now()
	err := p.publisher.Publish(ctx, row.AggregateID, row.EventType, row.Payload)
	p.log.ExternalCallLogger("broker", "publish", time.Since(start), err == nil)

	if err == nil {
		now := time.Now().UTC()
		p.db.WithContext(ctx).Model(&storage.OutboxEventRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"status":       string(domain.OutboxCompleted),
			"processed_at": &now,
		})
		p.metrics.OutboxPublished.Inc()
		p.metrics.OutboxPending.Dec()
		return
	}

	p.metrics.OutboxRetries.Inc()
	retryCount := row.RetryCount + 1
	if retryCount >= p.cfg.MaxRetries {
		p.db.WithContext(ctx).Model(&storage.OutboxEventRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"status":      string(domain.OutboxDeadLetter),
			"retry_count": retryCount,
			"error":       err.Error(),
		})
		p.metrics.OutboxDeadLetter.Inc()
		p.metrics.OutboxPending.Dec()
		p.log.OutboxLogger(row.ID, row.EventType, string(domain.OutboxDeadLetter), retryCount)
		return
	}

	backoff := time.Duration(math.Pow(2, float64(retryCount))) * time.Second
	p.db.WithContext(ctx).Model(&storage.OutboxEventRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
		"status":        string(domain.OutboxPending),
		"retry_count":   retryCount,
		"next_retry_at": time.Now().UTC().Add(backoff),
		"error":         err.Error(),
	})
	p.log.OutboxLogger(row.ID, row.EventType, string(domain.OutboxPending), retryCount)
}
