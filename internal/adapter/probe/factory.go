package probe

import (
	"log/slog"
	"net/http"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
)

// New builds the Prober for a given backend kind. Tagged dispatch, not
// an inheritance tree, per spec §9's design note.
func New(kind domain.Kind, baseURL string, client *http.Client, logger *slog.Logger, maxAllowedRequestQueue, maxAllowedDeferred int) Prober {
	switch kind {
	case domain.KindVLLM:
		return NewVLLM(baseURL, client, logger, maxAllowedRequestQueue, maxAllowedDeferred)
	default:
		return NewLlamaCPP(baseURL, client, logger, maxAllowedRequestQueue, maxAllowedDeferred)
	}
}
