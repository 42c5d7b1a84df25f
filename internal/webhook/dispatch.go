// Package webhook delivers a best-effort, HMAC-signed notification to each
// configured endpoint after a successful commit. Delivery never affects
// the commit transaction's outcome.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

// Dispatcher fans a payload out to every configured endpoint.
type Dispatcher struct {
	client   *resty.Client
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      config.WebhookConfig
	log      *logging.Logger
	metrics  *metrics.PipelineMetrics
}

func NewDispatcher(cfg config.WebhookConfig, log *logging.Logger, m *metrics.PipelineMetrics) *Dispatcher {
	client := resty.New()
	client.SetTimeout(cfg.Timeout())
	client.SetRetryCount(cfg.MaxRetries)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(5 * time.Second)

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		breakers[endpoint] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook:" + endpoint,
			MaxRequests: 2,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}

	return &Dispatcher{client: client, breakers: breakers, cfg: cfg, log: log, metrics: m}
}

// DispatchAll sends payload to every configured endpoint concurrently.
// Failures are logged and counted; they never surface to the caller.
func (d *Dispatcher) DispatchAll(ctx context.Context, payload []byte) {
	for _, endpoint := range d.cfg.Endpoints {
		go d.dispatchOne(ctx, endpoint, payload)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, endpoint string, payload []byte) {
	start := time.Now()
	d.metrics.WebhookAttempts.Inc()

	breaker := d.breakers[endpoint]
	_, err := breaker.Execute(func() (interface{}, error) {
		req := d.client.R().SetContext(ctx).SetBody(payload).SetHeader("Content-Type", "application/json")
		if d.cfg.Secret != "" {
			req.SetHeader("X-Signature", sign(d.cfg.Secret, payload))
		}
		resp, err := req.Post(endpoint)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, apperrors.WebhookError(endpoint, nil)
		}
		return nil, nil
	})

	d.log.ExternalCallLogger(endpoint, "webhook_dispatch", time.Since(start), err == nil)
	if err != nil {
		d.metrics.WebhookFailures.Inc()
	}
}

// sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
