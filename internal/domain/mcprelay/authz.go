package mcprelay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/jwtauth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// authenticate validates the inbound bearer token against authn, if the
// backend carries an mcp_authentication policy. A nil authn means the
// backend has no authentication requirement and every caller passes.
func (r *Relay) authenticate(ctx context.Context, authn *store.Policy, token string) (*jwtauth.Claims, error) {
	if authn == nil {
		return nil, nil
	}
	if r.JWKSSources == nil {
		return nil, fmt.Errorf("mcprelay: mcp_authentication configured but no JWKS source available")
	}
	pol := &store.Policy{
		Issuer:    authn.McpProvider,
		Audiences: []string{authn.McpAudience},
		JwtMode:   store.JwtStrict,
	}
	v := &jwtauth.Validator{Policy: pol, Keys: r.JWKSSources(authn.McpProvider)}
	claims, err := v.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(authn.McpScopes) > 0 {
		if !hasAllScopes(claims, authn.McpScopes) {
			return nil, fmt.Errorf("mcprelay: token missing required scopes %v", authn.McpScopes)
		}
	}
	return claims, nil
}

func hasAllScopes(claims *jwtauth.Claims, required []string) bool {
	if claims == nil {
		return false
	}
	granted := map[string]bool{}
	switch v := claims.Raw["scope"].(type) {
	case string:
		for _, s := range strings.Fields(v) {
			granted[s] = true
		}
	}
	if list, ok := claims.Raw["scopes"].([]any); ok {
		for _, s := range list {
			if str, ok := s.(string); ok {
				granted[str] = true
			}
		}
	}
	for _, want := range required {
		if !granted[want] {
			return false
		}
	}
	return true
}

// authorizeToolCall evaluates every mcp_authorization rule set attached to
// the backend against one tool invocation. All rule sets must evaluate
// true; a backend with no rule sets at all has nothing to deny and the
// call is allowed, matching the rest of the pipeline's "absence of policy
// imposes no restriction" convention.
func (r *Relay) authorizeToolCall(ctx context.Context, ruleSets []store.Policy, evalCtx policy.EvaluationContext) (bool, error) {
	if r.CELEvaluator == nil {
		return true, nil
	}
	for _, rs := range ruleSets {
		for _, expr := range rs.CELRules {
			prg, err := r.CELEvaluator.Compile(expr)
			if err != nil {
				return false, fmt.Errorf("compile mcp authorization rule: %w", err)
			}
			allowed, err := r.CELEvaluator.Evaluate(prg, evalCtx)
			if err != nil {
				return false, fmt.Errorf("evaluate mcp authorization rule: %w", err)
			}
			if !allowed {
				return false, nil
			}
		}
	}
	return true, nil
}

func bearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) > len(prefix) && authHeader[:len(prefix)] == prefix {
		return authHeader[len(prefix):]
	}
	return ""
}

func buildEvalContext(backendName, identitySubject string, claims map[string]any, toolName string, args map[string]any) policy.EvaluationContext {
	return policy.EvaluationContext{
		ToolName:      toolName,
		ToolArguments: args,
		IdentityID:    identitySubject,
		RequestTime:   time.Now(),
		ActionType:    "tool_call",
		ActionName:    toolName,
		Protocol:      "mcp",
		Gateway:       "mcp-relay",
		DestPath:      backendName,
	}
}
