package llm

import (
	"encoding/json"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// vertexProvider is a passthrough translator like OpenAI's: Vertex's
// model-garden chat endpoints accept the OpenAI-compatible schema
// directly, so the request is re-encoded with the model exactly as the
// client sent it; no model override is applied. The host is taken from
// HostOverride, and a backend without one is an error.
// Authentication is a GCP ADC bearer token, attached by the backend-auth
// stage, not here.
type vertexProvider struct{}

func (vertexProvider) TranslateRequest(req ChatCompletionRequest, backend *store.AIBackend) (Translated, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Translated{}, fmt.Errorf("llm/vertex: marshal request: %w", err)
	}
	host := ""
	if backend != nil {
		host = backend.HostOverride
	}
	if host == "" {
		return Translated{}, fmt.Errorf("llm/vertex: host_override is required (per-model endpoint)")
	}
	return Translated{Host: host, Path: "/v1/chat/completions", Body: body}, nil
}

func (vertexProvider) TranslateResponse(body []byte, log *ResponseLog) (ChatCompletionResponse, error) {
	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("llm/vertex: unmarshal response: %w", err)
	}
	log.InputTokens = resp.Usage.PromptTokens
	log.OutputTokens = resp.Usage.CompletionTokens
	log.TotalTokens = resp.Usage.TotalTokens
	log.ProviderModel = resp.Model
	return resp, nil
}
