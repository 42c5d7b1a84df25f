// Package broker publishes commit-stage events onto Kafka, guarded by a
// circuit breaker so a broker outage degrades outbox throughput instead of
// cascading into the commit path.
package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/config"
)

// Publisher wraps a kafka-go Writer behind a circuit breaker.
type Publisher struct {
	writer  *kafka.Writer
	breaker *gobreaker.CircuitBreaker
}

// NewPublisher configures one writer per process, partitioned by message
// key (the aggregate id) so all events for one proposal serialize onto the
// same partition.
func NewPublisher(cfg config.BrokerConfig) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-publish",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Publisher{writer: writer, breaker: breaker}
}

// Publish sends one event keyed by aggregateID (the proposal id), carrying
// eventType as a header.
func (p *Publisher) Publish(ctx context.Context, aggregateID, eventType string, payload []byte) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		msg := kafka.Message{
			Key:   []byte(aggregateID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(eventType)},
			},
			Time: time.Now().UTC(),
		}
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return apperrors.EventPublishError(aggregateID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
