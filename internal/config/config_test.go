package config

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Proxy.MetricsCacheTTL != DefaultMetricsCacheTTL {
		t.Errorf("expected metrics cache ttl %s, got %s", DefaultMetricsCacheTTL, cfg.Proxy.MetricsCacheTTL)
	}
	if cfg.Proxy.BackendTimeout != DefaultBackendTimeout {
		t.Errorf("expected backend timeout %s, got %s", DefaultBackendTimeout, cfg.Proxy.BackendTimeout)
	}
	if cfg.Proxy.MaxAllowedRequestQueue != DefaultMaxRequestQueue {
		t.Errorf("expected max request queue %d, got %d", DefaultMaxRequestQueue, cfg.Proxy.MaxAllowedRequestQueue)
	}
	if cfg.Proxy.MaxAllowedDeferred != DefaultMaxDeferred {
		t.Errorf("expected max deferred %d, got %d", DefaultMaxDeferred, cfg.Proxy.MaxAllowedDeferred)
	}
	if len(cfg.Backends) != 0 {
		t.Errorf("expected no default backends, got %v", cfg.Backends)
	}
}

func TestParseBackends(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"single", "http://a", []string{"http://a"}},
		{"multi", "http://a,http://b", []string{"http://a", "http://b"}},
		{"whitespace and trailing slash", " http://a/ , http://b ", []string{"http://a", "http://b"}},
		{"blank entries dropped", "http://a,,http://b,", []string{"http://a", "http://b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseBackends(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseBackends(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseBackends(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDurationSecondsEnv(t *testing.T) {
	t.Setenv("METRICS_CACHE_TTL_SECONDS", "")
	if got := durationSecondsEnv("METRICS_CACHE_TTL_SECONDS", DefaultMetricsCacheTTL); got != DefaultMetricsCacheTTL {
		t.Errorf("expected fallback %s, got %s", DefaultMetricsCacheTTL, got)
	}

	t.Setenv("METRICS_CACHE_TTL_SECONDS", "1.5")
	if got := durationSecondsEnv("METRICS_CACHE_TTL_SECONDS", DefaultMetricsCacheTTL); got.Milliseconds() != 1500 {
		t.Errorf("expected 1500ms, got %s", got)
	}
}

func TestIntEnv(t *testing.T) {
	t.Setenv("MAX_ALLOWED_DEFERRED", "7")
	if got := intEnv("MAX_ALLOWED_DEFERRED", DefaultMaxDeferred); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestLoad_EmptyBackendsIsFatal(t *testing.T) {
	// Load calls logger.Fatal -> os.Exit(1) on an empty backend pool;
	// exercising that path directly would terminate the test binary,
	// so the invariant is covered by parseBackends/TestParseBackends
	// instead. This test documents the contract.
	t.Skip("Load's fatal-on-empty-BACKENDS path calls os.Exit; covered indirectly via parseBackends")
}
