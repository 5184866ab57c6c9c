package llm

import (
	"encoding/json"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

func TestOpenAIProviderPassthrough(t *testing.T) {
	p, err := ForProvider(store.ProviderOpenAI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	translated, err := p.TranslateRequest(ChatCompletionRequest{Model: "gpt-4", Messages: []Message{{Role: "user", Content: "hi"}}}, nil)
	if err != nil {
		t.Fatalf("translate request: %v", err)
	}
	if translated.Host != "api.openai.com" || translated.Path != "/v1/chat/completions" {
		t.Fatalf("unexpected translation: %+v", translated)
	}

	respBody, _ := json.Marshal(ChatCompletionResponse{
		Model:   "gpt-4",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: "hello"}}},
		Usage:   Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	})
	var log ResponseLog
	resp, err := p.TranslateResponse(respBody, &log)
	if err != nil {
		t.Fatalf("translate response: %v", err)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if log.InputTokens != 5 || log.OutputTokens != 3 {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestAnthropicProviderJoinsSystemAndRequiresMaxTokens(t *testing.T) {
	p, _ := ForProvider(store.ProviderAnthropic)
	translated, err := p.TranslateRequest(ChatCompletionRequest{
		Model: "claude-3",
		Messages: []Message{
			{Role: "system", Content: "be nice"},
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("translate request: %v", err)
	}

	var raw anthropicRequest
	if err := json.Unmarshal(translated.Body, &raw); err != nil {
		t.Fatalf("unmarshal translated body: %v", err)
	}
	if raw.System != "be nice\n\nbe brief" {
		t.Fatalf("expected joined system prompt, got %q", raw.System)
	}
	if len(raw.Messages) != 1 || raw.Messages[0].Role != "user" {
		t.Fatalf("expected only the user message to remain, got %+v", raw.Messages)
	}
	if raw.MaxTokens != anthropicDefaultMaxTokens {
		t.Fatalf("expected default max_tokens, got %d", raw.MaxTokens)
	}
}

func TestAnthropicProviderTranslateResponse(t *testing.T) {
	p, _ := ForProvider(store.ProviderAnthropic)
	body, _ := json.Marshal(anthropicResponse{
		ID:         "msg_1",
		Model:      "claude-3",
		Content:    []anthropicContentBlock{{Type: "text", Text: "hello there"}},
		StopReason: "end_turn",
		Usage:      anthropicUsage{InputTokens: 10, OutputTokens: 4},
	})
	var log ResponseLog
	resp, err := p.TranslateResponse(body, &log)
	if err != nil {
		t.Fatalf("translate response: %v", err)
	}
	if resp.Choices[0].Message.Content != "hello there" {
		t.Fatalf("unexpected content: %+v", resp)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("expected stop_reason mapped to stop, got %q", resp.Choices[0].FinishReason)
	}
	if log.InputTokens != 10 || log.OutputTokens != 4 {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestBedrockProviderTranslateRequestAndResponse(t *testing.T) {
	p, _ := ForProvider(store.ProviderBedrock)
	maxTokens := 512
	translated, err := p.TranslateRequest(ChatCompletionRequest{
		Model:     "anthropic.claude-3-sonnet",
		Messages:  []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		MaxTokens: &maxTokens,
	}, nil)
	if err != nil {
		t.Fatalf("translate request: %v", err)
	}
	if translated.Path != "/model/anthropic.claude-3-sonnet/converse" {
		t.Fatalf("unexpected path: %s", translated.Path)
	}

	respBody, _ := json.Marshal(bedrockResponse{
		Output:     bedrockOutput{Message: bedrockOutputMessage{Content: []bedrockContentBlock{{Text: "resp"}}}},
		StopReason: "end_turn",
		Usage:      bedrockUsage{InputTokens: 7, OutputTokens: 2, TotalTokens: 9},
	})
	var log ResponseLog
	resp, err := p.TranslateResponse(respBody, &log)
	if err != nil {
		t.Fatalf("translate response: %v", err)
	}
	if resp.Choices[0].Message.Content != "resp" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if log.TotalTokens != 9 {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestVertexProviderRequiresHostOverride(t *testing.T) {
	p, _ := ForProvider(store.ProviderVertex)
	_, err := p.TranslateRequest(ChatCompletionRequest{Model: "gemini-pro"}, nil)
	if err == nil {
		t.Fatal("expected error when host_override is absent")
	}

	_, err = p.TranslateRequest(ChatCompletionRequest{Model: "gemini-pro"}, &store.AIBackend{HostOverride: "vertex.example.com"})
	if err != nil {
		t.Fatalf("unexpected error with host override set: %v", err)
	}
}

func TestResponseLogFinalizePrefersProviderOverTokenizer(t *testing.T) {
	log := &ResponseLog{TokenizerInputTokens: 100}
	log.Finalize()
	if log.InputTokens != 100 {
		t.Fatalf("expected tokenizer fallback when provider absent, got %d", log.InputTokens)
	}

	log2 := &ResponseLog{InputTokens: 42, TokenizerInputTokens: 100}
	log2.Finalize()
	if log2.InputTokens != 42 {
		t.Fatalf("expected provider figure to win, got %d", log2.InputTokens)
	}
}
