package app

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthMetrics mirrors one backend's dynamic record for the /health
// response body (spec §6).
type healthMetrics struct {
	Timestamp          time.Time `json:"timestamp"`
	RequestsProcessing float64   `json:"requests_processing"`
	Ready              bool      `json:"ready"`
}

type healthDetail struct {
	Backend string        `json:"backend"`
	Ready   bool          `json:"ready"`
	Metrics healthMetrics `json:"metrics"`
}

type healthResponse struct {
	Status            string         `json:"status"`
	AvailableBackends []string       `json:"available_backends"`
	TotalBackends     int            `json:"total_backends"`
	Timestamp         time.Time      `json:"timestamp"`
	Details           []healthDetail `json:"details"`
}

// handleHealth is a pure cache read: it never probes backends
// synchronously, so liveness checks stay cheap under load (spec §4.7).
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	snaps := a.cache.SnapshotAll()

	resp := healthResponse{
		Status:            "degraded",
		AvailableBackends: []string{},
		TotalBackends:     len(snaps),
		Timestamp:         time.Now(),
		Details:           make([]healthDetail, 0, len(snaps)),
	}

	for _, s := range snaps {
		var detail healthDetail
		detail.Backend = s.URL

		if s.Dynamic != nil {
			detail.Ready = s.Dynamic.Ready
			detail.Metrics = healthMetrics{
				Timestamp:          s.Dynamic.Timestamp,
				RequestsProcessing: s.Dynamic.RequestsProcessing,
				Ready:              s.Dynamic.Ready,
			}
		}

		if detail.Ready {
			resp.Status = "ok"
			resp.AvailableBackends = append(resp.AvailableBackends, s.URL)
		}

		resp.Details = append(resp.Details, detail)
	}

	writeJSON(w, http.StatusOK, resp)
}

// statusBackend is one backend's full cache state for the operator-
// facing /internal/status endpoint (SPEC_FULL.md §4.13, D4).
type statusBackend struct {
	URL   string  `json:"url"`
	Model string  `json:"model,omitempty"`
	Kind  string  `json:"kind,omitempty"`
	Ready bool    `json:"ready"`
	Load  float64 `json:"load"`
	Stale bool    `json:"stale"`
}

type statusResponse struct {
	Backends []statusBackend `json:"backends"`
}

// handleStatus exposes everything an operator would want beyond the
// client-facing /health summary: discovered model/kind and staleness
// per backend.
func (a *Application) handleStatus(w http.ResponseWriter, r *http.Request) {
	snaps := a.cache.SnapshotAll()
	now := time.Now()
	staleWindow := 2 * a.cfg.Proxy.MetricsCacheTTL

	resp := statusResponse{Backends: make([]statusBackend, 0, len(snaps))}
	for _, s := range snaps {
		b := statusBackend{URL: s.URL}
		if s.Static != nil {
			b.Model = s.Static.Model
			b.Kind = string(s.Static.Kind)
		}
		if s.Dynamic != nil {
			b.Ready = s.Dynamic.Ready
			b.Load = s.Dynamic.RequestsProcessing
			b.Stale = s.Dynamic.Stale(now, staleWindow)
		} else {
			b.Stale = true
		}
		resp.Backends = append(resp.Backends, b)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
