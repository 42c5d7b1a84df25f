package prepare

import (
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// maxComplexityScore and friends bound how large a delta patch may be
// before preparation falls back to a full rebuild.
const (
	maxChangedRatio    = 0.30
	maxComplexityScore = 5
	maxCascadeDepth    = 3
	maxRecentFailures  = 3
)

// needsFullRebuild decides whether a delta can be patched against a cached
// frozen input or whether the safer full recompute is required. A cache
// hit with no Changes carries nothing to patch, so the cached entry
// applies unchanged.
func needsFullRebuild(cached *domain.FrozenInput, req *domain.CalculateRequest, recentFailures int) bool {
	if cached == nil {
		return true
	}
	if req.Changes == nil {
		return false
	}
	if req.Changes.Type == domain.DeltaFull {
		return true
	}
	if cached.SchemaVersion != req.Config.SchemaVersion {
		return true
	}
	if recentFailures > maxRecentFailures {
		return true
	}

	total := len(cached.LineItems) + len(cached.Modifiers)
	if total == 0 {
		return true
	}
	changed := len(req.Changes.ChangedLineItems) + len(req.Changes.ChangedModifiers) +
		len(req.Changes.RemovedLineItemIDs) + len(req.Changes.RemovedModifierIDs)
	if float64(changed)/float64(total) > maxChangedRatio {
		return true
	}

	if complexityScore(req.Changes) > maxComplexityScore {
		return true
	}
	if cascadeDepth(cached, req.Changes) > maxCascadeDepth {
		return true
	}

	return false
}

// complexityScore approximates how much downstream recomputation a delta
// triggers: every changed line item and modifier counts one, and a changed
// modifier with a compiled rule counts two more. Dependency edges are not
// scored here; cascadeDepth measures them separately.
func complexityScore(d *domain.Delta) int {
	score := len(d.ChangedLineItems)
	for _, m := range d.ChangedModifiers {
		score++
		if m.CompiledRule != nil {
			score += 2
		}
	}
	return score
}

// cascadeDepth counts how many dependency hops a changed modifier id
// reaches into, since a deeply chained REQUIRES/EXCLUDES edge can force
// re-evaluation far beyond the directly changed modifiers.
func cascadeDepth(cached *domain.FrozenInput, d *domain.Delta) int {
	changed := map[string]bool{}
	for _, m := range d.ChangedModifiers {
		changed[m.ID] = true
	}
	for _, id := range d.RemovedModifierIDs {
		changed[id] = true
	}
	if len(changed) == 0 {
		return 0
	}

	edges := map[string][]string{}
	for _, dep := range cached.Dependencies {
		edges[dep.DependsOn] = append(edges[dep.DependsOn], dep.ModifierID)
	}

	depth := 0
	frontier := make([]string, 0, len(changed))
	for id := range changed {
		frontier = append(frontier, id)
	}
	visited := map[string]bool{}
	for len(frontier) > 0 {
		next := []string{}
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true
			next = append(next, edges[id]...)
		}
		if len(next) == 0 {
			break
		}
		depth++
		frontier = next
	}
	return depth
}

// applyDelta patches a cached frozen input's snapshot with a MODIFIER_ONLY
// or LINE_ITEM delta. The caller must have already confirmed
// needsFullRebuild is false.
func applyDelta(cached *domain.FrozenInput, d *domain.Delta) *Snapshot {
	lineItems := mergeLineItems(cached.LineItems, d.ChangedLineItems, d.RemovedLineItemIDs)
	modifiers := mergeModifiers(cached.Modifiers, d.ChangedModifiers, d.RemovedModifierIDs)

	return &Snapshot{
		ProposalID:    cached.ProposalID,
		Tenant:        cached.Tenant,
		SchemaVersion: cached.SchemaVersion,
		LineItems:     lineItems,
		Modifiers:     modifiers,
		Dependencies:  cached.Dependencies,
		Config:        cached.Config,
	}
}

func mergeLineItems(base, changed []domain.LineItem, removed []string) []domain.LineItem {
	removedSet := toSet(removed)
	byID := make(map[string]domain.LineItem, len(base))
	order := make([]string, 0, len(base))
	for _, li := range base {
		if removedSet[li.ID] {
			continue
		}
		if _, exists := byID[li.ID]; !exists {
			order = append(order, li.ID)
		}
		byID[li.ID] = li
	}
	for _, li := range changed {
		if _, exists := byID[li.ID]; !exists {
			order = append(order, li.ID)
		}
		byID[li.ID] = li
	}
	out := make([]domain.LineItem, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func mergeModifiers(base, changed []domain.Modifier, removed []string) []domain.Modifier {
	removedSet := toSet(removed)
	byID := make(map[string]domain.Modifier, len(base))
	order := make([]string, 0, len(base))
	for _, m := range base {
		if removedSet[m.ID] {
			continue
		}
		if _, exists := byID[m.ID]; !exists {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	for _, m := range changed {
		if _, exists := byID[m.ID]; !exists {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	out := make([]domain.Modifier, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
