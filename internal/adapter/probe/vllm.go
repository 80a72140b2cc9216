package probe

import (
	"context"
	"log/slog"
	"net/http"
)

// vllmGaugeNames resolves SPEC_FULL.md's "vLLM probe resolution": the
// running/waiting request gauges vLLM exposes map onto the same
// processing/deferred readiness gate llamacpp uses.
var vllmGaugeNames = map[string][2]string{
	"requests_processing": {"vllm:num_requests_running", "vllm_num_requests_running"},
	"requests_deferred":   {"vllm:num_requests_waiting", "vllm_num_requests_waiting"},
}

// VLLM implements the probe contract for a vLLM server. Health reuses
// the llamacpp contract unchanged — both ecosystems expose the same
// FastAPI-style `{"status": "ok"}` health endpoint.
type VLLM struct {
	client                 *http.Client
	logger                 *slog.Logger
	baseURL                string
	maxAllowedRequestQueue int
	maxAllowedDeferred     int
}

func NewVLLM(baseURL string, client *http.Client, logger *slog.Logger, maxAllowedRequestQueue, maxAllowedDeferred int) *VLLM {
	return &VLLM{
		baseURL:                baseURL,
		client:                 client,
		logger:                 logger,
		maxAllowedRequestQueue: maxAllowedRequestQueue,
		maxAllowedDeferred:     maxAllowedDeferred,
	}
}

func (p *VLLM) Health(ctx context.Context) bool {
	return (&LlamaCPP{
		baseURL: p.baseURL,
		client:  p.client,
		logger:  p.logger,
	}).Health(ctx)
}

func (p *VLLM) Metrics(ctx context.Context) (float64, bool) {
	return fetchPrometheusMetrics(ctx, p.client, p.logger, p.baseURL, vllmGaugeNames, p.maxAllowedRequestQueue, p.maxAllowedDeferred, p.Health)
}
