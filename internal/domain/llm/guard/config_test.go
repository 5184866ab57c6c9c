package guard

import "testing"

func TestDecodeConfigEmptyIsNoOp(t *testing.T) {
	cfg, err := DecodeConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.PromptRules) != 0 || len(cfg.ResponseRules) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestDecodeConfigParsesRuleSets(t *testing.T) {
	raw := []byte(`{"prompt_rules":[{"recognizers":["EMAIL_ADDRESS"],"action":"reject","reject_status_code":451,"reject_body":"no"}],"response_rules":[{"recognizers":["SSN"],"action":"mask"}]}`)
	cfg, err := DecodeConfig(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.PromptRules) != 1 || len(cfg.ResponseRules) != 1 {
		t.Fatalf("expected one rule per set, got %+v", cfg)
	}
	if cfg.PromptRules[0].RejectStatus != 451 {
		t.Fatalf("expected reject status to round-trip, got %d", cfg.PromptRules[0].RejectStatus)
	}
}

func TestDecodeConfigRejectsInvalidJSON(t *testing.T) {
	if _, err := DecodeConfig([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestBuildRuleResolvesBuiltinRecognizers(t *testing.T) {
	rule, err := BuildRule(RuleSpec{Recognizers: []string{"EMAIL_ADDRESS"}, Action: ActionMask})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rule.Recognizers) != 1 {
		t.Fatalf("expected one recognizer, got %d", len(rule.Recognizers))
	}
	out, rejected, _ := rule.Apply("reach me at a@b.com")
	if rejected || out != "reach me at <EMAIL_ADDRESS>" {
		t.Fatalf("unexpected apply result: out=%q rejected=%v", out, rejected)
	}
}

func TestBuildRuleDefaultsRejectStatus(t *testing.T) {
	rule, err := BuildRule(RuleSpec{Action: ActionReject})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Reject.StatusCode != 403 {
		t.Fatalf("expected default 403, got %d", rule.Reject.StatusCode)
	}
}

func TestBuildRuleUnknownRecognizerErrors(t *testing.T) {
	if _, err := BuildRule(RuleSpec{Recognizers: []string{"NOT_A_RECOGNIZER"}}); err == nil {
		t.Fatal("expected error for unknown recognizer name")
	}
}
