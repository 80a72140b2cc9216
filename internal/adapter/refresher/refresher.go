// Package refresher runs the background loop that keeps the metrics
// cache warm: a static-discovery phase, a concurrent dynamic-metrics
// phase, a commit phase, and a self-pacing sleep (spec §4.4).
package refresher

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ensemblehq/inference-proxy/internal/adapter/cache"
	"github.com/ensemblehq/inference-proxy/internal/adapter/probe"
	"github.com/ensemblehq/inference-proxy/internal/core/domain"
)

// Refresher owns the cache-population loop for one set of configured
// backends.
type Refresher struct {
	cache                  *cache.Cache
	client                 *http.Client
	logger                 *slog.Logger
	ttl                    time.Duration
	maxAllowedRequestQueue int
	maxAllowedDeferred     int
}

func New(c *cache.Cache, client *http.Client, logger *slog.Logger, ttl time.Duration, maxAllowedRequestQueue, maxAllowedDeferred int) *Refresher {
	return &Refresher{
		cache:                  c,
		client:                 client,
		logger:                 logger,
		ttl:                    ttl,
		maxAllowedRequestQueue: maxAllowedRequestQueue,
		maxAllowedDeferred:     maxAllowedDeferred,
	}
}

// Run loops the static/dynamic/commit cycle until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	for {
		start := time.Now()

		r.runStaticPhase(ctx)
		r.runDynamicPhase(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		elapsed := time.Since(start)
		sleep := r.ttl - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// runStaticPhase discovers model name and kind once per backend. A
// backend that already has a static record is skipped; one that fails
// is retried on the next cycle (matches the original's retry-by-
// omission behaviour).
func (r *Refresher) runStaticPhase(ctx context.Context) {
	for _, url := range r.cache.Backends() {
		if r.cache.Static(url) != nil {
			continue
		}

		r.logger.Info("fetching static info", "backend", url)
		rec, err := probe.DiscoverStatic(ctx, r.client, url)
		if err != nil {
			r.logger.Warn("failed to fetch static info, will retry", "backend", url, "error", err)
			continue
		}

		r.logger.Info("fetched static info", "backend", url, "model", rec.Model, "kind", rec.Kind)
		r.cache.SetStatic(url, rec)
	}
}

// runDynamicPhase probes every backend with known kind concurrently.
// It deliberately does not use errgroup.WithContext's cancel-on-
// first-error: one backend's probe failure must never cancel its
// siblings' in-flight requests (SPEC_FULL.md §4 "C4 concurrency").
func (r *Refresher) runDynamicPhase(ctx context.Context) {
	backends := r.cache.Backends()
	now := time.Now()

	var g errgroup.Group
	for _, url := range backends {
		static := r.cache.Static(url)
		if static == nil {
			continue // no known kind yet, skip until static phase succeeds
		}

		url := url
		static := static
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Warn("metrics probe panicked, marking backend unavailable", "backend", url, "panic", p)
					r.cache.SetDynamic(url, domain.DynamicRecord{Timestamp: now, RequestsProcessing: math.MaxFloat64, Ready: false})
				}
			}()
			rec := r.probeOne(ctx, url, *static, now)
			r.cache.SetDynamic(url, rec)
			return nil
		})
	}
	_ = g.Wait() // errors are handled per-backend inside probeOne, never propagated
}

// probeOne runs a single backend's metrics probe and converts the
// result into a DynamicRecord.
func (r *Refresher) probeOne(ctx context.Context, url string, static domain.StaticRecord, now time.Time) domain.DynamicRecord {
	p := probe.New(static.Kind, url, r.client, r.logger, r.maxAllowedRequestQueue, r.maxAllowedDeferred)
	load, ready := p.Metrics(ctx)

	return domain.DynamicRecord{
		Timestamp:          now,
		RequestsProcessing: load,
		Ready:              ready,
	}
}
