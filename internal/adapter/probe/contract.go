// Package probe implements the per-backend-kind readiness/load probes
// (spec §4.2): a small capability set, not an inheritance tree.
package probe

import (
	"context"
	"time"
)

const (
	HealthTimeout  = 1 * time.Second
	MetricsTimeout = 5 * time.Second
)

// Prober is the capability set every backend kind must implement.
// Health never raises: any transport, decode, or assertion failure
// collapses to false. Metrics never raises either: when the metrics
// cannot be fetched or parsed it returns load 0 with readiness taken
// from Health, so the refresher can treat a probe as a total function.
type Prober interface {
	Health(ctx context.Context) bool
	Metrics(ctx context.Context) (load float64, ready bool)
}
