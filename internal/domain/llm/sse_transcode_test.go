package llm

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTranscodeAnthropicSSE(t *testing.T) {
	input := strings.Join([]string{
		`event: message_start`,
		`data: {"message":{"id":"msg_1","model":"claude-3","usage":{"input_tokens":10}}}`,
		``,
		`event: content_block_delta`,
		`data: {"delta":{"type":"text_delta","text":"hel"}}`,
		``,
		`event: content_block_delta`,
		`data: {"delta":{"type":"text_delta","text":"lo"}}`,
		``,
		`event: message_delta`,
		`data: {"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
		``,
		`event: message_stop`,
		`data: {}`,
		``,
	}, "\n")

	var out bytes.Buffer
	var log ResponseLog
	if err := TranscodeAnthropicSSE(&out, strings.NewReader(input), &log); err != nil {
		t.Fatalf("transcode: %v", err)
	}

	chunks := parseChunks(t, out.String())
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks (start, 2 deltas, stop), got %d: %s", len(chunks), out.String())
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Fatalf("expected first chunk to set role, got %+v", chunks[0])
	}
	if chunks[1].Choices[0].Delta.Content != "hel" || chunks[2].Choices[0].Delta.Content != "lo" {
		t.Fatalf("expected content deltas, got %+v %+v", chunks[1], chunks[2])
	}
	if chunks[3].Choices[0].FinishReason == nil || *chunks[3].Choices[0].FinishReason != "stop" {
		t.Fatalf("expected final chunk finish_reason=stop, got %+v", chunks[3])
	}

	if log.InputTokens != 10 || log.OutputTokens != 2 {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func parseChunks(t *testing.T, raw string) []ChatCompletionChunk {
	t.Helper()
	var chunks []ChatCompletionChunk
	for _, block := range strings.Split(raw, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		data := strings.TrimPrefix(block, "data: ")
		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("unmarshal chunk %q: %v", data, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
