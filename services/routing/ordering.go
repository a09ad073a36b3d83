package routing

import (
	"sort"

	"github.com/modelgrid/provider-router/services/providers"
)

// orderCandidates builds the candidate ordering for one route call from a
// catalog snapshot:
//
//  1. Drop candidates whose ID or Kind appears in the exclusion set.
//  2. When a preferred provider is present among the remainder, move it to
//     the front; the rest keep catalog order.
//  3. Otherwise stable-sort healthy-first, then ascending priority, so equal
//     candidates keep catalog order and the ordering is reproducible.
//
// Health is read once here; the resulting slice is the fixed order for the
// whole call even if health changes mid-flight.
func orderCandidates(descriptors []providers.ProviderDescriptor, rctx RoutingContext, oracle providers.HealthOracle) []providers.ProviderDescriptor {
	excluded := make(map[string]bool, len(rctx.ExcludedProviders))
	for _, e := range rctx.ExcludedProviders {
		excluded[e] = true
	}

	candidates := make([]providers.ProviderDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if excluded[d.ID] || excluded[string(d.Kind)] {
			continue
		}
		candidates = append(candidates, d)
	}

	if rctx.PreferredProvider != "" {
		for i, d := range candidates {
			if d.ID == rctx.PreferredProvider {
				preferred := candidates[i]
				rest := append(candidates[:i:i], candidates[i+1:]...)
				return append([]providers.ProviderDescriptor{preferred}, rest...)
			}
		}
	}

	healthy := make(map[string]bool, len(candidates))
	for _, d := range candidates {
		healthy[d.ID] = oracle.IsHealthy(d.ID)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if healthy[candidates[a].ID] != healthy[candidates[b].ID] {
			return healthy[candidates[a].ID]
		}
		return candidates[a].Priority < candidates[b].Priority
	})

	return candidates
}
