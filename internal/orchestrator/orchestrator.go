// Package orchestrator composes the preparation, pure compute, and commit
// stages behind a single Calculate entry point, recording per-stage
// timings. The request deadline is applied to the preparation stage only;
// pure compute is bounded by its own wall-clock budget, and the commit
// stage runs without a deadline.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/commit"
	"github.com/proposalcore/pricing-engine/internal/compute"
	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/prepare"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
	"github.com/proposalcore/pricing-engine/internal/webhook"
)

// Timings reports the wall-clock cost of each stage, returned alongside the
// result for diagnostics and SLO tracking.
type Timings struct {
	PreparationMs float64 `json:"preparationMs"`
	ComputeMs     float64 `json:"computeMs"`
	CommitMs      float64 `json:"commitMs"`
	TotalMs       float64 `json:"totalMs"`
}

// Response is the orchestrator's output: the computed result, the commit
// outcome, and per-stage diagnostic timings.
type Response struct {
	Result  *domain.Result
	Commit  *commit.CommitOutcome
	Timings Timings
}

// Orchestrator wires the three stages together behind one Calculate call.
type Orchestrator struct {
	prepare  *prepare.Service
	writer   *commit.Writer
	webhooks *webhook.Dispatcher
	opts     compute.Options
	deadline config.DeadlineConfig
	log      *logging.Logger
	metrics  *metrics.PipelineMetrics

	shutdown int32
}

func New(prep *prepare.Service, writer *commit.Writer, webhooks *webhook.Dispatcher, opts compute.Options, deadline config.DeadlineConfig, log *logging.Logger, m *metrics.PipelineMetrics) *Orchestrator {
	return &Orchestrator{
		prepare:  prep,
		writer:   writer,
		webhooks: webhooks,
		opts:     opts,
		deadline: deadline,
		log:      log,
		metrics:  m,
	}
}

// Shutdown marks the orchestrator unavailable for further Calculate calls.
// In-flight calls are allowed to finish.
func (o *Orchestrator) Shutdown() {
	atomic.StoreInt32(&o.shutdown, 1)
}

// Calculate runs preparation, pure compute, and commit for one request,
// returning a validation/compute/commit error from whichever stage failed
// without invoking any later stage.
func (o *Orchestrator) Calculate(ctx context.Context, req *domain.CalculateRequest) (*Response, error) {
	if atomic.LoadInt32(&o.shutdown) == 1 {
		return nil, apperrors.Internal("calculate", nil)
	}

	totalStart := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.deadline.RequestDeadline())
	defer cancel()

	o.metrics.CalculationsTotal.Inc()

	prepStart := time.Now()
	frozen, err := o.prepare.Prepare(ctx, req)
	prepMs := msSince(prepStart)
	o.metrics.StageDuration.WithLabelValues("preparation").Observe(prepMs / 1000)
	if err != nil {
		o.recordError(err)
		return nil, err
	}

	computeStart := time.Now()
	result, err := compute.Compute(frozen, o.opts)
	computeMs := msSince(computeStart)
	o.metrics.StageDuration.WithLabelValues("compute").Observe(computeMs / 1000)
	if err != nil {
		o.recordError(err)
		return nil, err
	}

	commitStart := time.Now()
	outcome, err := o.writer.Commit(req.ProposalID, req.Tenant, result, totalStart, time.Now(), map[string]float64{
		"preparationMs": prepMs,
		"computeMs":     computeMs,
	})
	commitMs := msSince(commitStart)
	o.metrics.StageDuration.WithLabelValues("commit").Observe(commitMs / 1000)
	if err != nil {
		o.recordError(err)
		return nil, err
	}

	if !outcome.Replayed && o.webhooks != nil {
		if payload, encodeErr := webhookPayload(req.ProposalID, result); encodeErr == nil {
			o.webhooks.DispatchAll(context.Background(), payload)
		}
	}

	totalMs := msSince(totalStart)
	o.metrics.CalculationDuration.Observe(totalMs / 1000)

	return &Response{
		Result: result,
		Commit: outcome,
		Timings: Timings{
			PreparationMs: prepMs,
			ComputeMs:     computeMs,
			CommitMs:      commitMs,
			TotalMs:       totalMs,
		},
	}, nil
}

func (o *Orchestrator) recordError(err error) {
	kind := "unknown"
	if ce := apperrors.As(err); ce != nil {
		kind = string(ce.Kind)
	}
	o.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func webhookPayload(proposalID string, result *domain.Result) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"proposalId":         proposalID,
		"checksum":           result.Checksum,
		"customerGrandTotal": result.CustomerGrandTotalQ2.String(),
	})
}
