package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// sseEvent is one parsed `event: ...\ndata: ...\n\n` frame.
type sseEvent struct {
	Event string
	Data  string
}

func parseSSE(r *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev.Event != "" || ev.Data != "" {
				return ev, nil
			}
			if err != nil {
				return sseEvent{}, err
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if err != nil {
			if ev.Event != "" || ev.Data != "" {
				return ev, nil
			}
			return sseEvent{}, err
		}
	}
}

func writeChunk(w io.Writer, chunk ChatCompletionChunk) error {
	body, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}

// anthropicStreamState is the stateful transducer driving SSE translation: it
// consumes Anthropic's message_start / content_block_delta / message_delta
// events and emits OpenAI-shaped chat.completion.chunk events, tallying
// tokens into log as it goes.
type anthropicStreamState struct {
	id    string
	model string
}

type anthropicMessageStart struct {
	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
}

type anthropicContentBlockDelta struct {
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
}

// TranscodeAnthropicSSE reads an Anthropic streaming response body and
// writes OpenAI-shaped chat.completion.chunk SSE frames to w, tallying
// tokens into log as events arrive.
func TranscodeAnthropicSSE(w io.Writer, body io.Reader, log *ResponseLog) error {
	state := &anthropicStreamState{}
	r := bufio.NewReader(body)

	for {
		ev, err := parseSSE(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("llm: read anthropic sse event: %w", err)
		}
		if ev.Data == "" {
			continue
		}

		switch ev.Event {
		case "message_start":
			var start anthropicMessageStart
			if err := json.Unmarshal([]byte(ev.Data), &start); err != nil {
				return fmt.Errorf("llm: parse message_start: %w", err)
			}
			state.id = start.Message.ID
			state.model = start.Message.Model
			log.InputTokens = start.Message.Usage.InputTokens
			if err := writeChunk(w, ChatCompletionChunk{
				ID: state.id, Object: "chat.completion.chunk", Model: state.model,
				Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{Role: "assistant"}}},
			}); err != nil {
				return err
			}
		case "content_block_delta":
			var delta anthropicContentBlockDelta
			if err := json.Unmarshal([]byte(ev.Data), &delta); err != nil {
				return fmt.Errorf("llm: parse content_block_delta: %w", err)
			}
			if delta.Delta.Type != "text_delta" {
				continue
			}
			if err := writeChunk(w, ChatCompletionChunk{
				ID: state.id, Object: "chat.completion.chunk", Model: state.model,
				Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{Content: delta.Delta.Text}}},
			}); err != nil {
				return err
			}
		case "message_delta":
			var md anthropicMessageDelta
			if err := json.Unmarshal([]byte(ev.Data), &md); err != nil {
				return fmt.Errorf("llm: parse message_delta: %w", err)
			}
			log.OutputTokens = md.Usage.OutputTokens
			finish := finishReasonFromStopReason(md.Delta.StopReason)
			if err := writeChunk(w, ChatCompletionChunk{
				ID: state.id, Object: "chat.completion.chunk", Model: state.model,
				Choices: []ChunkChoice{{Index: 0, FinishReason: &finish}},
			}); err != nil {
				return err
			}
		case "message_stop":
			log.ProviderModel = state.model
			return nil
		}
	}
}
