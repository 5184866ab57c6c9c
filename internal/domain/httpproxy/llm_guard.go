package httpproxy

import (
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/llm"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/llm/guard"
)

// applyGuardRules runs every configured rule against each message's content
// in order, mutating messages in place for a Mask action and stopping at
// the first Reject.
func applyGuardRules(specs []guard.RuleSpec, messages []llm.Message) (rejected bool, reject guard.RejectResponse, err error) {
	for _, spec := range specs {
		rule, buildErr := guard.BuildRule(spec)
		if buildErr != nil {
			return false, guard.RejectResponse{}, buildErr
		}
		for i, msg := range messages {
			result, didReject, _ := rule.Apply(msg.Content)
			if didReject {
				return true, rule.Reject, nil
			}
			messages[i].Content = result
		}
	}
	return false, guard.RejectResponse{}, nil
}

// writeGuardReject renders a guard rule's configured reject response
// verbatim; an empty body falls back to a generic JSON error so a
// misconfigured rule never serves an empty 200-shaped body.
func writeGuardReject(w http.ResponseWriter, reject guard.RejectResponse) {
	status := reject.StatusCode
	if status == 0 {
		status = http.StatusForbidden
	}
	body := reject.Body
	if body == "" {
		body = `{"error":"prompt_guard_rejected"}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
