package llm

import (
	"encoding/json"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// openAIProvider is a passthrough translator: the canonical schema already
// is OpenAI's schema, so the request is re-encoded with the model exactly as
// the client sent it and only the host is resolved. No model override is
// applied.
type openAIProvider struct{}

func (openAIProvider) TranslateRequest(req ChatCompletionRequest, backend *store.AIBackend) (Translated, error) {
	req.Model = modelOrDefault(req.Model, "")
	body, err := json.Marshal(req)
	if err != nil {
		return Translated{}, fmt.Errorf("llm/openai: marshal request: %w", err)
	}
	return Translated{
		Host: defaultHostPath(backend, "api.openai.com", "/v1/chat/completions"),
		Path: "/v1/chat/completions",
		Body: body,
	}, nil
}

func (openAIProvider) TranslateResponse(body []byte, log *ResponseLog) (ChatCompletionResponse, error) {
	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("llm/openai: unmarshal response: %w", err)
	}
	log.InputTokens = resp.Usage.PromptTokens
	log.OutputTokens = resp.Usage.CompletionTokens
	log.TotalTokens = resp.Usage.TotalTokens
	log.ProviderModel = resp.Model
	return resp, nil
}
