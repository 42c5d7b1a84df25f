package compute

import (
	"fmt"
	"sort"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/domain"
)

// resolveDependencies builds the modifier DAG, detects cycles, topologically
// sorts with ties broken by (chainPriority, id), drops modifiers whose
// REQUIRES target is absent or itself dropped, and resolves EXCLUDES so the
// first accepted modifier in topological order wins.
func resolveDependencies(modifiers []domain.Modifier, deps []domain.Dependency, maxDepth int) ([]domain.Modifier, []domain.RejectedModifier, error) {
	byID := make(map[string]domain.Modifier, len(modifiers))
	for _, m := range modifiers {
		byID[m.ID] = m
	}

	requires := map[string][]string{}
	excludes := map[string][]string{}
	for _, d := range deps {
		switch d.Type {
		case domain.DependencyRequires:
			requires[d.ModifierID] = append(requires[d.ModifierID], d.DependsOn)
		case domain.DependencyExcludes:
			// Exclusion is mutual: whichever of the pair is accepted first
			// in topological order excludes the other.
			excludes[d.ModifierID] = append(excludes[d.ModifierID], d.DependsOn)
			excludes[d.DependsOn] = append(excludes[d.DependsOn], d.ModifierID)
		}
	}

	if err := detectCycles(modifiers, requires, maxDepth); err != nil {
		return nil, nil, err
	}

	order, err := topologicalSort(modifiers, requires)
	if err != nil {
		return nil, nil, err
	}

	var rejected []domain.RejectedModifier
	dropped := map[string]struct{}{}

	// REQUIRES: drop any modifier whose required target is absent or
	// itself dropped. Iterate in topological order so a dropped
	// requirement cascades forward deterministically.
	for _, id := range order {
		for _, req := range requires[id] {
			if _, ok := byID[req]; !ok {
				dropped[id] = struct{}{}
				rejected = append(rejected, domain.RejectedModifier{ModifierID: id, Reason: "missing_requirement"})
				break
			}
			if _, isDropped := dropped[req]; isDropped {
				dropped[id] = struct{}{}
				rejected = append(rejected, domain.RejectedModifier{ModifierID: id, Reason: "missing_requirement"})
				break
			}
		}
	}

	// EXCLUDES: the first accepted modifier in topological order wins.
	excludedBy := map[string]string{}
	accepted := map[string]struct{}{}
	for _, id := range order {
		if _, isDropped := dropped[id]; isDropped {
			continue
		}
		if winner, isExcluded := excludedBy[id]; isExcluded {
			dropped[id] = struct{}{}
			rejected = append(rejected, domain.RejectedModifier{ModifierID: id, Reason: "excluded_by:" + winner})
			continue
		}
		accepted[id] = struct{}{}
		for _, target := range excludes[id] {
			if _, already := excludedBy[target]; !already {
				excludedBy[target] = id
			}
		}
	}

	result := make([]domain.Modifier, 0, len(accepted))
	for _, id := range order {
		if _, ok := accepted[id]; ok {
			result = append(result, byID[id])
		}
	}
	return result, rejected, nil
}

func detectCycles(modifiers []domain.Modifier, requires map[string][]string, maxDepth int) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(modifiers))
	for _, m := range modifiers {
		state[m.ID] = white
	}

	var visit func(id string, depth int) error
	visit = func(id string, depth int) error {
		if depth > maxDepth {
			return apperrors.InvalidInput(fmt.Sprintf("dependency chain for %s exceeds max depth %d", id, maxDepth))
		}
		state[id] = gray
		for _, dep := range requires[id] {
			switch state[dep] {
			case gray:
				return apperrors.InvalidInput(fmt.Sprintf("dependency cycle detected involving modifier %s", dep))
			case white:
				if err := visit(dep, depth+1); err != nil {
					return err
				}
			}
		}
		state[id] = black
		return nil
	}

	for _, m := range modifiers {
		if state[m.ID] == white {
			if err := visit(m.ID, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalSort orders modifier IDs so every REQUIRES target precedes
// its dependent, breaking ties by (chainPriority ASC, id ASC).
func topologicalSort(modifiers []domain.Modifier, requires map[string][]string) ([]string, error) {
	byID := make(map[string]domain.Modifier, len(modifiers))
	inDegree := make(map[string]int, len(modifiers))
	dependents := make(map[string][]string, len(modifiers))

	for _, m := range modifiers {
		byID[m.ID] = m
		inDegree[m.ID] = 0
	}
	for id, reqs := range requires {
		if _, ok := byID[id]; !ok {
			continue
		}
		for _, req := range reqs {
			if _, ok := byID[req]; !ok {
				continue // unresolved requirement handled post-sort as missing_requirement
			}
			inDegree[id]++
			dependents[req] = append(dependents[req], id)
		}
	}

	ready := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		if inDegree[m.ID] == 0 {
			ready = append(ready, m.ID)
		}
	}
	sortByPriorityThenID(ready, byID)

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []string
		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sortByPriorityThenID(newlyReady, byID)
		ready = mergeSortedByPriority(ready, newlyReady, byID)
	}

	if len(order) != len(modifiers) {
		return nil, apperrors.InvalidInput("dependency graph contains a cycle")
	}
	return order, nil
}

func sortByPriorityThenID(ids []string, byID map[string]domain.Modifier) {
	sort.Slice(ids, func(i, j int) bool {
		mi, mj := byID[ids[i]], byID[ids[j]]
		if mi.ChainPriority != mj.ChainPriority {
			return mi.ChainPriority < mj.ChainPriority
		}
		return mi.ID < mj.ID
	})
}

func mergeSortedByPriority(a, b []string, byID map[string]domain.Modifier) []string {
	merged := append(a, b...)
	sortByPriorityThenID(merged, byID)
	return merged
}
