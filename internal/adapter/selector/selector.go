// Package selector implements least-outstanding-requests backend
// selection over the metrics cache (spec §4.5). Choose performs no
// network I/O — it is a pure read of already-published cache state,
// so request-path latency never depends on probe round-trip time.
package selector

import (
	"math/rand/v2"
	"time"

	"github.com/ensemblehq/inference-proxy/internal/adapter/cache"
	"github.com/ensemblehq/inference-proxy/internal/core/domain"
)

type candidate struct {
	url  string
	kind domain.Kind
	load float64
}

// Choose picks a backend with the lowest RequestsProcessing among
// those that are ready and whose dynamic record is fresher than
// 2*ttl. Ties are broken uniformly at random to spread load evenly
// (P3). Returns false if no candidate qualifies.
func Choose(c *cache.Cache, ttl time.Duration) (domain.Target, bool) {
	now := time.Now()
	staleWindow := 2 * ttl

	var candidates []candidate
	for _, url := range c.Backends() {
		static := c.Static(url)
		dyn := c.Dynamic(url)
		if static == nil || dyn == nil {
			continue
		}
		if !dyn.Ready || dyn.Stale(now, staleWindow) {
			continue
		}
		candidates = append(candidates, candidate{url: url, kind: static.Kind, load: dyn.RequestsProcessing})
	}

	if len(candidates) == 0 {
		return domain.Target{}, false
	}

	minLoad := candidates[0].load
	for _, cand := range candidates[1:] {
		if cand.load < minLoad {
			minLoad = cand.load
		}
	}

	var best []candidate
	for _, cand := range candidates {
		if cand.load == minLoad {
			best = append(best, cand)
		}
	}

	chosen := best[rand.IntN(len(best))]
	return domain.Target{URL: chosen.url, Kind: chosen.kind}, true
}
