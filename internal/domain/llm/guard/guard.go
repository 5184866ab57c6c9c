package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Action is what a guard rule does when it finds a match.
type Action string

const (
	ActionReject Action = "reject"
	ActionMask   Action = "mask"
	ActionPass   Action = "pass"
)

// MaskBody selects which side of the exchange a webhook's Mask response
// applies to.
type MaskBody string

const (
	MaskPromptMessages  MaskBody = "prompt_messages"
	MaskResponseChoices MaskBody = "response_choices"
)

// RejectResponse is the literal body+status returned to the client when a
// rule's action is Reject.
type RejectResponse struct {
	StatusCode int
	Body       string
}

// RegexRule scans message content with one or more recognizers (built-in
// or custom) and applies Action on any match.
type RegexRule struct {
	Recognizers []*Recognizer
	Action      Action
	Reject      RejectResponse
}

// Apply runs the rule's recognizers against content, returning the
// (possibly masked) content, whether a reject is required, and the
// findings observed.
func (r RegexRule) Apply(content string) (result string, rejected bool, findings []Finding) {
	result = content
	for _, rec := range r.Recognizers {
		fs := rec.Recognize(result)
		if len(fs) == 0 {
			continue
		}
		findings = append(findings, fs...)
		switch r.Action {
		case ActionReject:
			return result, true, findings
		case ActionMask:
			for _, f := range fs {
				result = strings.ReplaceAll(result, f.Matched, fmt.Sprintf("<%s>", f.EntityType))
			}
		}
	}
	return result, false, findings
}

// WebhookMessage is the shape POSTed to a webhook rule's URL.
type WebhookMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type webhookRequestBody struct {
	Messages []WebhookMessage `json:"messages"`
}

// WebhookResponse is what the webhook is expected to return.
type WebhookResponse struct {
	Action     Action   `json:"action"`
	Body       []WebhookMessage `json:"body,omitempty"`
	StatusCode int      `json:"status_code,omitempty"`
}

// WebhookRule POSTs the conversation to an external URL and applies
// whatever action the URL's response names.
type WebhookRule struct {
	URL    string
	Client *http.Client
}

// Apply calls the webhook with messages and returns its decision.
func (w WebhookRule) Apply(ctx context.Context, messages []WebhookMessage) (WebhookResponse, error) {
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	payload, err := json.Marshal(webhookRequestBody{Messages: messages})
	if err != nil {
		return WebhookResponse{}, fmt.Errorf("guard: marshal webhook request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return WebhookResponse{}, fmt.Errorf("guard: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return WebhookResponse{}, fmt.Errorf("guard: call webhook: %w", err)
	}
	defer resp.Body.Close()

	var out WebhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return WebhookResponse{}, fmt.Errorf("guard: decode webhook response: %w", err)
	}
	return out, nil
}

// ModerationClient calls an OpenAI-compatible /v1/moderations endpoint.
type ModerationClient struct {
	Host   string
	APIKey string
	Client *http.Client
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResult struct {
	Flagged bool `json:"flagged"`
}

type moderationResponse struct {
	Results []moderationResult `json:"results"`
}

// Check collates content and calls the moderation endpoint, returning true
// if any result came back flagged.
func (m ModerationClient) Check(ctx context.Context, content string) (bool, error) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	payload, err := json.Marshal(moderationRequest{Input: content})
	if err != nil {
		return false, fmt.Errorf("guard: marshal moderation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Host+"/v1/moderations", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("guard: build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("guard: call moderation endpoint: %w", err)
	}
	defer resp.Body.Close()

	var out moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("guard: decode moderation response: %w", err)
	}
	for _, r := range out.Results {
		if r.Flagged {
			return true, nil
		}
	}
	return false, nil
}
