package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

type bedrockContentBlock struct {
	Text string `json:"text"`
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockSystemBlock struct {
	Text string `json:"text"`
}

type bedrockInferenceConfig struct {
	MaxTokens *int `json:"maxTokens,omitempty"`
}

type bedrockRequest struct {
	Messages        []bedrockMessage       `json:"messages"`
	System          []bedrockSystemBlock   `json:"system,omitempty"`
	InferenceConfig bedrockInferenceConfig `json:"inferenceConfig"`
}

type bedrockOutputMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockOutput struct {
	Message bedrockOutputMessage `json:"message"`
}

type bedrockUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type bedrockResponse struct {
	Output     bedrockOutput `json:"output"`
	StopReason string        `json:"stopReason"`
	Usage      bedrockUsage  `json:"usage"`
}

// bedrockProvider translates to the Bedrock Converse API. The model is
// embedded in the request path and the region in the host
// (bedrock-runtime.us-east-1.amazonaws.com unless HostOverride is set), and
// its authentication
// (SigV4) is applied late because it must sign the
// fully-mutated final body — this translator only emits the body, it never
// sets AuthHeaders.
type bedrockProvider struct{}

func (bedrockProvider) TranslateRequest(req ChatCompletionRequest, backend *store.AIBackend) (Translated, error) {
	system, rest := anthropicJoinSystemPromptsBedrock(req.Messages)

	out := bedrockRequest{
		InferenceConfig: bedrockInferenceConfig{MaxTokens: req.MaxTokens},
	}
	if system != "" {
		out.System = []bedrockSystemBlock{{Text: system}}
	}
	for _, m := range rest {
		out.Messages = append(out.Messages, bedrockMessage{
			Role:    m.Role,
			Content: []bedrockContentBlock{{Text: m.Content}},
		})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return Translated{}, fmt.Errorf("llm/bedrock: marshal request: %w", err)
	}

	host := defaultHostPath(backend, "bedrock-runtime.us-east-1.amazonaws.com", "")
	return Translated{
		Host: host,
		Path: bedrockModelPath(req.Model),
		Body: body,
	}, nil
}

// anthropicJoinSystemPromptsBedrock mirrors anthropicJoinSystemPrompts;
// Bedrock's Converse API separates system text from the message list the
// same way Anthropic's Messages API does.
func anthropicJoinSystemPromptsBedrock(messages []Message) (string, []Message) {
	var systemParts []string
	var rest []Message
	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(systemParts, "\n\n"), rest
}

func (bedrockProvider) TranslateResponse(body []byte, log *ResponseLog) (ChatCompletionResponse, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("llm/bedrock: unmarshal response: %w", err)
	}

	var text string
	for _, block := range resp.Output.Message.Content {
		text += block.Text
	}

	log.InputTokens = resp.Usage.InputTokens
	log.OutputTokens = resp.Usage.OutputTokens
	log.TotalTokens = resp.Usage.TotalTokens

	return ChatCompletionResponse{
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: text},
			FinishReason: finishReasonFromStopReason(resp.StopReason),
		}},
	}, nil
}
