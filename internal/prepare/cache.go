package prepare

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/fingerprint"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

// FrozenInputCache caches frozen inputs keyed by the canonical fingerprint
// of the request shape with the delta removed, so repeated requests for an
// unchanged proposal skip preparation entirely.
type FrozenInputCache struct {
	client  *redis.Client
	ttl     config.RedisConfig
	metrics *metrics.PipelineMetrics
}

func NewFrozenInputCache(cfg config.RedisConfig, m *metrics.PipelineMetrics) *FrozenInputCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &FrozenInputCache{client: client, ttl: cfg, metrics: m}
}

// Key computes the cache key for a request from a canonical fingerprint of
// every field that determines its frozen shape, independent of any
// Changes delta it carries, since the delta targets a cached entry rather
// than identifying a new one.
func Key(req *domain.CalculateRequest) string {
	return "prep:" + fingerprint.Of(requestKeyValue(req))
}

func requestKeyValue(req *domain.CalculateRequest) map[string]interface{} {
	rules := make(map[string]interface{}, len(req.Rules))
	for id, rule := range req.Rules {
		rules[id] = rule
	}
	return map[string]interface{}{
		"proposalId":    req.ProposalID,
		"tenant":        req.Tenant,
		"lineItems":     canonicalLineItems(req.LineItems),
		"modifiers":     canonicalModifiers(req.Modifiers),
		"dependencies":  canonicalDependencies(req.Dependencies),
		"rules":         rules,
		"config":        canonicalTaxConfig(req.Config),
	}
}

func (c *FrozenInputCache) Get(ctx context.Context, key string) (*domain.FrozenInput, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.metrics.PreparationCacheMisses.Inc()
		return nil, false
	}

	var in domain.FrozenInput
	if err := json.Unmarshal(raw, &in); err != nil {
		c.metrics.PreparationCacheMisses.Inc()
		return nil, false
	}
	c.metrics.PreparationCacheHits.Inc()
	return &in, true
}

func (c *FrozenInputCache) Set(ctx context.Context, key string, in *domain.FrozenInput) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl.PreparationCacheTTL()).Err()
}
