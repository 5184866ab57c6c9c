package guard

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RuleSpec is the wire shape of one RegexRule, as carried in a backend's AI
// guard policy (store.Policy.AIGuardConfig).
type RuleSpec struct {
	Recognizers  []string `json:"recognizers"`
	Action       Action   `json:"action"`
	RejectStatus int      `json:"reject_status_code,omitempty"`
	RejectBody   string   `json:"reject_body,omitempty"`
}

// Config is the decoded form of an AI guard policy: separate rule sets for
// the outbound prompt and the inbound completion, since a deployment
// commonly wants to reject PII on the way out but only mask it on the way
// back.
type Config struct {
	PromptRules   []RuleSpec `json:"prompt_rules"`
	ResponseRules []RuleSpec `json:"response_rules"`
}

// DecodeConfig parses a backend's AI guard policy configuration. A nil or
// empty payload is a valid no-op config.
func DecodeConfig(raw []byte) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("guard: decode config: %w", err)
	}
	return cfg, nil
}

var builtinByEntityType = func() map[string]*Recognizer {
	m := map[string]*Recognizer{}
	for _, r := range BuiltinRecognizers() {
		m[r.entityType] = r
	}
	return m
}()

// BuildRule resolves a RuleSpec's recognizer names into a runnable
// RegexRule. An unknown recognizer name is a configuration error rather
// than a silently-skipped rule.
func BuildRule(spec RuleSpec) (RegexRule, error) {
	rule := RegexRule{
		Action: spec.Action,
		Reject: RejectResponse{StatusCode: spec.RejectStatus, Body: spec.RejectBody},
	}
	if rule.Reject.StatusCode == 0 {
		rule.Reject.StatusCode = http.StatusForbidden
	}
	for _, name := range spec.Recognizers {
		rec, ok := builtinByEntityType[name]
		if !ok {
			return RegexRule{}, fmt.Errorf("guard: unknown recognizer %q", name)
		}
		rule.Recognizers = append(rule.Recognizers, rec)
	}
	return rule, nil
}
