package llm

import (
	"fmt"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// Translated is the result of translating a canonical request into a
// provider's wire format: the host/path to dial, the auth header(s) to
// attach (SigV4 is applied later, separately, since it must sign the final
// body), and the request body to send.
type Translated struct {
	Host string
	Path string
	// AuthHeaders is empty for providers whose auth is applied later
	// (Bedrock's SigV4) or out-of-band (Vertex's ADC bearer, attached by
	// the backend-auth stage).
	AuthHeaders map[string]string
	Body        []byte
}

// Provider translates canonical chat-completion requests/responses to and
// from one LLM vendor's wire format.
type Provider interface {
	// TranslateRequest builds the provider-specific request body and
	// target host/path from a canonical request.
	TranslateRequest(req ChatCompletionRequest, backend *store.AIBackend) (Translated, error)
	// TranslateResponse parses a non-streaming provider response body back
	// into the canonical schema, recording usage into log.
	TranslateResponse(body []byte, log *ResponseLog) (ChatCompletionResponse, error)
}

// ForProvider returns the Provider implementation for kind, or an error if
// kind is not one of the four supported providers.
func ForProvider(kind store.AIProvider) (Provider, error) {
	switch kind {
	case store.ProviderOpenAI:
		return openAIProvider{}, nil
	case store.ProviderAnthropic:
		return anthropicProvider{}, nil
	case store.ProviderBedrock:
		return bedrockProvider{}, nil
	case store.ProviderVertex:
		return vertexProvider{}, nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", kind)
	}
}

// defaultHostPath resolves the provider's host unless overridden by the
// backend config (the "Host / path" override, subject to
// HostOverride).
func defaultHostPath(backend *store.AIBackend, defaultHost, path string) string {
	if backend != nil && backend.HostOverride != "" {
		return backend.HostOverride
	}
	return defaultHost
}

func modelOrDefault(model, override string) string {
	if override != "" {
		return override
	}
	return model
}

// bedrockModelPath renders the Converse API path for a given model ID.
// The model ID is embedded as is, with no escaping of colons or slashes.
func bedrockModelPath(model string) string {
	return fmt.Sprintf("/model/%s/converse", model)
}

// anthropicJoinSystemPrompts extracts and concatenates all "system" role
// messages (Anthropic's API takes one top-level system string rather than
// interleaved system messages).
func anthropicJoinSystemPrompts(messages []Message) (system string, rest []Message) {
	var systemParts []string
	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(systemParts, "\n\n"), rest
}
