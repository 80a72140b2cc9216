package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
	"github.com/ensemblehq/inference-proxy/internal/util"
)

type modelsResponse struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

// DiscoverStatic performs the static-discovery phase for one backend
// (spec §4.4 step 1): GET /v1/models to obtain the model name, then
// GET /v1/models again to find the owned_by field for that model,
// which is taken as the backend kind.
func DiscoverStatic(ctx context.Context, client *http.Client, baseURL string) (domain.StaticRecord, error) {
	first, err := fetchModels(ctx, client, baseURL)
	if err != nil {
		return domain.StaticRecord{}, domain.NewProbeError(baseURL, "fetch model list", err)
	}
	if len(first.Data) == 0 {
		return domain.StaticRecord{}, domain.NewProbeError(baseURL, "fetch model list", errors.New("backend reported no models"))
	}
	modelName := first.Data[0].ID

	second, err := fetchModels(ctx, client, baseURL)
	if err != nil {
		return domain.StaticRecord{}, domain.NewProbeError(baseURL, "fetch model list (kind lookup)", err)
	}

	kind := domain.KindUnknown
	for _, m := range second.Data {
		if m.ID == modelName {
			kind = normaliseKind(m.OwnedBy)
			break
		}
	}
	if kind == domain.KindUnknown {
		return domain.StaticRecord{}, domain.NewProbeError(baseURL, "resolve kind",
			fmt.Errorf("could not determine backend kind for model %q", modelName))
	}

	return domain.StaticRecord{Model: modelName, Kind: kind}, nil
}

func fetchModels(ctx context.Context, client *http.Client, baseURL string) (modelsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, util.JoinURLPath(baseURL, "/v1/models"), nil)
	if err != nil {
		return modelsResponse{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return modelsResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return modelsResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return modelsResponse{}, err
	}
	return body, nil
}

func normaliseKind(ownedBy string) domain.Kind {
	switch domain.Kind(ownedBy) {
	case domain.KindLlamaCPP, domain.KindVLLM:
		return domain.Kind(ownedBy)
	default:
		return domain.KindUnknown
	}
}
