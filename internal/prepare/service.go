package prepare

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

// Service is the preparation stage's public entry point: given a request it
// returns the frozen, normalised input the compute stage consumes, using
// the cache and coalescer to avoid redundant work across concurrent
// callers pricing the same proposal.
type Service struct {
	fetcher   *Fetcher
	compiler  *RuleCompiler
	cache     *FrozenInputCache
	coalescer *Coalescer
	log       *logging.Logger
	metrics   *metrics.PipelineMetrics

	failuresMu sync.Mutex
	failures   map[string][]time.Time
}

func NewService(fetcher *Fetcher, compiler *RuleCompiler, cache *FrozenInputCache, log *logging.Logger, m *metrics.PipelineMetrics) *Service {
	return &Service{
		fetcher:   fetcher,
		compiler:  compiler,
		cache:     cache,
		coalescer: NewCoalescer(m),
		log:       log,
		metrics:   m,
		failures:  make(map[string][]time.Time),
	}
}

// Prepare returns a frozen input for req, serving from cache when possible
// and patching via delta when the change set is small enough, falling back
// to a full rebuild otherwise.
func (s *Service) Prepare(ctx context.Context, req *domain.CalculateRequest) (*domain.FrozenInput, error) {
	key := Key(req)

	return s.coalescer.Do(req.ProposalID, func() (*domain.FrozenInput, error) {
		cached, hit := s.cache.Get(ctx, key)

		if hit && !needsFullRebuild(cached, req, s.recentFailures(req.ProposalID)) {
			if req.Changes == nil {
				return cached, nil
			}
			patched, err := s.rebuildFromDelta(ctx, cached, req)
			if err != nil {
				s.recordFailure(req.ProposalID)
				return s.rebuildFull(ctx, req, key)
			}
			return patched, nil
		}

		return s.rebuildFull(ctx, req, key)
	})
}

func (s *Service) rebuildFromDelta(ctx context.Context, cached *domain.FrozenInput, req *domain.CalculateRequest) (*domain.FrozenInput, error) {
	snap := applyDelta(cached, req.Changes)
	snap.RawRules = req.Rules
	return s.finish(ctx, snap, Key(req))
}

func (s *Service) rebuildFull(ctx context.Context, req *domain.CalculateRequest, key string) (*domain.FrozenInput, error) {
	snap, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, snap, key)
}

func (s *Service) finish(ctx context.Context, snap *Snapshot, key string) (*domain.FrozenInput, error) {
	normalized, err := normalize(snap)
	if err != nil {
		return nil, err
	}

	in, err := freeze(normalized, s.compiler)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, in); err != nil {
		s.log.Warn("failed to cache frozen input", zap.String("proposalId", in.ProposalID), zap.Error(err))
	}
	return in, nil
}

func (s *Service) recentFailures(proposalID string) int {
	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	kept := s.failures[proposalID][:0]
	for _, t := range s.failures[proposalID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.failures[proposalID] = kept
	return len(kept)
}

func (s *Service) recordFailure(proposalID string) {
	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()
	s.failures[proposalID] = append(s.failures[proposalID], time.Now())
}
