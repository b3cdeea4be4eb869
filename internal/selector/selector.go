// Package selector implements the capability-based scoring function (§4.3)
// that turns a registry snapshot into an ordered [primary, fallback...]
// list for a requested capability.
package selector

import (
	"sort"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/registry"
)

// Score computes a provider's fitness for dispatch:
//
//	score = priority
//	      × (healthy ? 1 : 0.1)
//	      × (response_time > 0 ? 1000 / response_time_ms : 1)
//	      × (1 - error_rate)
func Score(cfg registry.Config, health registry.Health) float64 {
	score := float64(cfg.Priority)

	if health.IsHealthy {
		score *= 1.0
	} else {
		score *= 0.1
	}

	if ms := float64(health.ResponseTime.Milliseconds()); ms > 0 {
		score *= 1000 / ms
	}

	score *= 1 - health.ErrorRate
	return score
}

// Select scores every provider in the registry that declares cap, and
// returns a non-empty ordered list: the highest-scoring provider first,
// then its configured fallback list filtered to providers that also
// possess cap, in declaration order. Fails with ProviderUnavailable if no
// provider qualifies.
func Select(reg *registry.Registry, cap provider.Capability) ([]provider.ID, error) {
	entries := reg.Snapshot()

	type scored struct {
		id    provider.ID
		score float64
	}

	var candidates []scored
	for _, e := range entries {
		if !e.Config.HasCapability(cap) {
			continue
		}
		candidates = append(candidates, scored{id: e.Config.ID, score: Score(e.Config, e.Health)})
	}

	if len(candidates) == 0 {
		return nil, gwerrors.New(gwerrors.ProviderUnavailable, "no provider configured for capability "+string(cap))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	primary := candidates[0].id
	primaryCfg, _ := reg.Config(primary)

	ordered := []provider.ID{primary}
	seen := map[provider.ID]bool{primary: true}

	for _, fallbackID := range primaryCfg.Fallbacks {
		if seen[fallbackID] {
			continue
		}
		fallbackCfg, ok := reg.Config(fallbackID)
		if !ok || !fallbackCfg.HasCapability(cap) {
			continue
		}
		ordered = append(ordered, fallbackID)
		seen[fallbackID] = true
	}

	return ordered, nil
}
