package llm

import (
	"encoding/json"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

// anthropicProvider translates the canonical schema to Anthropic's Messages
// API: system-role messages are joined into one top-level `system` string,
// the rest are mapped 1:1, and max_tokens is required (Anthropic rejects a
// request without one) so a default is substituted when the request omits
// it.
type anthropicProvider struct{}

const anthropicDefaultMaxTokens = 1024

func (anthropicProvider) TranslateRequest(req ChatCompletionRequest, backend *store.AIBackend) (Translated, error) {
	system, rest := anthropicJoinSystemPrompts(req.Messages)

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	out := anthropicRequest{
		Model:     req.Model,
		System:    system,
		MaxTokens: maxTokens,
	}
	for _, m := range rest {
		out.Messages = append(out.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return Translated{}, fmt.Errorf("llm/anthropic: marshal request: %w", err)
	}
	return Translated{
		Host: defaultHostPath(backend, "api.anthropic.com", "/v1/messages"),
		Path: "/v1/messages",
		Body: body,
	}, nil
}

// finishReasonFromStopReason maps Anthropic's stop_reason vocabulary onto
// OpenAI's finish_reason vocabulary.
func finishReasonFromStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return stopReason
	}
}

func (anthropicProvider) TranslateResponse(body []byte, log *ResponseLog) (ChatCompletionResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("llm/anthropic: unmarshal response: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	log.InputTokens = resp.Usage.InputTokens
	log.OutputTokens = resp.Usage.OutputTokens
	log.ProviderModel = resp.Model

	return ChatCompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: text},
			FinishReason: finishReasonFromStopReason(resp.StopReason),
		}},
	}, nil
}
