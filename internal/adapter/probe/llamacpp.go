package probe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/ensemblehq/inference-proxy/internal/util"
)

// llamaCPPGaugeNames maps the canonical metric name this probe reports to the
// two family-name spellings a llamacpp server may use.
var llamaCPPGaugeNames = map[string][2]string{
	"requests_processing": {"llamacpp:requests_processing", "llamacpp_requests_processing"},
	"requests_deferred":   {"llamacpp:requests_deferred", "llamacpp_requests_deferred"},
}

// LlamaCPP implements the probe contract for a llama.cpp server.
type LlamaCPP struct {
	client                 *http.Client
	logger                 *slog.Logger
	baseURL                string
	maxAllowedRequestQueue int
	maxAllowedDeferred     int
}

func NewLlamaCPP(baseURL string, client *http.Client, logger *slog.Logger, maxAllowedRequestQueue, maxAllowedDeferred int) *LlamaCPP {
	return &LlamaCPP{
		baseURL:                baseURL,
		client:                 client,
		logger:                 logger,
		maxAllowedRequestQueue: maxAllowedRequestQueue,
		maxAllowedDeferred:     maxAllowedDeferred,
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (p *LlamaCPP) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, util.JoinURLPath(p.baseURL, "/health"), nil)
	if err != nil {
		p.logger.Warn("health probe build failed", "backend", p.baseURL, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("health probe failed", "backend", p.baseURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("health probe non-2xx", "backend", p.baseURL, "status", resp.StatusCode)
		return false
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		p.logger.Warn("health probe decode failed", "backend", p.baseURL, "error", err)
		return false
	}

	return body.Status == "ok"
}

func (p *LlamaCPP) Metrics(ctx context.Context) (float64, bool) {
	return fetchPrometheusMetrics(ctx, p.client, p.logger, p.baseURL, llamaCPPGaugeNames, p.maxAllowedRequestQueue, p.maxAllowedDeferred, p.Health)
}

// fetchPrometheusMetrics is shared by every Prober variant that speaks
// Prometheus text exposition on /metrics (both llamacpp and vllm).
func fetchPrometheusMetrics(
	ctx context.Context,
	client *http.Client,
	logger *slog.Logger,
	baseURL string,
	gaugeNames map[string][2]string,
	maxAllowedRequestQueue, maxAllowedDeferred int,
	health func(context.Context) bool,
) (float64, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, MetricsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, util.JoinURLPath(baseURL, "/metrics"), nil)
	if err != nil {
		logger.Warn("metrics probe build failed", "backend", baseURL, "error", err)
		return 0, health(ctx)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("metrics probe failed", "backend", baseURL, "error", err)
		return 0, health(ctx)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("metrics probe non-2xx", "backend", baseURL, "status", resp.StatusCode)
		return 0, health(ctx)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		logger.Warn("metrics probe parse failed", "backend", baseURL, "error", err)
		return 0, health(ctx)
	}

	processing, haveProcessing := gaugeValue(families, gaugeNames["requests_processing"])
	deferred, haveDeferred := gaugeValue(families, gaugeNames["requests_deferred"])

	ready := health(ctx)
	if haveProcessing && haveDeferred {
		ready = ready && processing < float64(maxAllowedRequestQueue) && deferred < float64(maxAllowedDeferred)
		return processing, ready
	}

	return 0.0, ready
}

func gaugeValue(families map[string]*dto.MetricFamily, names [2]string) (float64, bool) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		fam, ok := families[name]
		if !ok || fam == nil || len(fam.Metric) == 0 {
			continue
		}
		m := fam.Metric[0]
		if m.Gauge != nil && m.Gauge.Value != nil {
			return *m.Gauge.Value, true
		}
		if m.Untyped != nil && m.Untyped.Value != nil {
			return *m.Untyped.Value, true
		}
	}
	return 0, false
}
