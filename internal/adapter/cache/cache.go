// Package cache implements the process-wide metrics cache (spec §4.3):
// a fixed-key-set map, written only by the refresher, read without
// locking by the selector and the health/status handlers.
package cache

import (
	"sync/atomic"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
)

// entry holds one backend's static and dynamic records. static is
// write-once (SetStatic ignores writes once it is set); dynamic is republished wholesale
// via an atomic pointer swap so readers never observe a torn record.
type entry struct {
	static  atomic.Pointer[domain.StaticRecord]
	dynamic atomic.Pointer[domain.DynamicRecord]
}

// Cache is a fixed-key-set map from backend URL to its records. The
// key set is established at construction time and never grows or
// shrinks, so concurrent writers only ever overwrite values at known
// keys (spec §4.3).
type Cache struct {
	entries map[string]*entry
	urls    []string
}

// New builds a cache pre-populated with one empty entry per backend
// URL. No entry is ever added or removed after this call.
func New(backends []string) *Cache {
	entries := make(map[string]*entry, len(backends))
	urls := make([]string, 0, len(backends))
	for _, url := range backends {
		entries[url] = &entry{}
		urls = append(urls, url)
	}
	return &Cache{entries: entries, urls: urls}
}

// Backends returns the fixed set of configured backend URLs.
func (c *Cache) Backends() []string {
	out := make([]string, len(c.urls))
	copy(out, c.urls)
	return out
}

// Static returns the backend's static record, or nil if not yet
// discovered.
func (c *Cache) Static(url string) *domain.StaticRecord {
	e, ok := c.entries[url]
	if !ok {
		return nil
	}
	return e.static.Load()
}

// SetStatic writes the static record for a backend if one is not
// already present (it is immutable after first success).
func (c *Cache) SetStatic(url string, rec domain.StaticRecord) {
	e, ok := c.entries[url]
	if !ok {
		return
	}
	if e.static.Load() != nil {
		return
	}
	e.static.Store(&rec)
}

// Dynamic returns the backend's dynamic record, or nil if no refresh
// has ever completed for it.
func (c *Cache) Dynamic(url string) *domain.DynamicRecord {
	e, ok := c.entries[url]
	if !ok {
		return nil
	}
	return e.dynamic.Load()
}

// SetDynamic replaces a backend's dynamic record wholesale.
func (c *Cache) SetDynamic(url string, rec domain.DynamicRecord) {
	e, ok := c.entries[url]
	if !ok {
		return
	}
	e.dynamic.Store(&rec)
}

// Snapshot is one backend's full cache state, used by /health and
// /internal/status.
type Snapshot struct {
	URL     string
	Static  *domain.StaticRecord
	Dynamic *domain.DynamicRecord
}

// SnapshotAll returns a point-in-time view of every configured
// backend. It never probes — a pure read of already-published
// records.
func (c *Cache) SnapshotAll() []Snapshot {
	out := make([]Snapshot, 0, len(c.urls))
	for _, url := range c.urls {
		e := c.entries[url]
		out = append(out, Snapshot{
			URL:     url,
			Static:  e.static.Load(),
			Dynamic: e.dynamic.Load(),
		})
	}
	return out
}
