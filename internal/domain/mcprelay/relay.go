package mcprelay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	celeval "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/jwtauth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// maxRequestBody bounds the size of an inbound JSON-RPC request this relay
// will read from a client, mirroring maxUpstreamBody on the other side.
const maxRequestBody = 4 * 1024 * 1024

// PolicySource looks up the mcp_authorization rule sets and the single
// mcp_authentication policy (if any) attached to an MCP backend. store.Store
// satisfies this directly via McpPolicies.
type PolicySource interface {
	McpPolicies(backendName string) (ruleSets []store.Policy, authn *store.Policy)
}

// Relay implements httpproxy.MCPDispatcher. One Relay instance serves every
// MCP backend a gateway's binds route to: per-backend behavior comes
// entirely from the store.McpBackend and policies passed into Dispatch, not
// from per-backend Relay configuration.
type Relay struct {
	Policies PolicySource

	// CELEvaluator runs mcp_authorization CEL rules. Nil disables
	// authorization (every call is allowed), matching the rest of the
	// pipeline's nil-field-means-unconfigured convention.
	CELEvaluator *celeval.Evaluator

	// JWKSSources resolves the key source for an mcp_authentication
	// policy's McpProvider. Required only when a backend actually
	// attaches an mcp_authentication policy.
	JWKSSources func(provider string) jwtauth.KeySetSource

	// HTTPClient is shared across SSE/OpenAPI target calls. A nil value
	// causes a client to be constructed lazily with sane defaults.
	HTTPClient *http.Client

	Logger *slog.Logger
}

func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Dispatch reads one JSON-RPC request from r, handles it against backend's
// targets, and writes the JSON-RPC response to w.
func (r *Relay) Dispatch(ctx context.Context, backendName string, backend *store.McpBackend, w http.ResponseWriter, httpReq *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(httpReq.Body, maxRequestBody+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxRequestBody {
		return fmt.Errorf("request body exceeds %d byte limit", maxRequestBody)
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, errResponse(nil, errCodeInvalidParams, "malformed json-rpc request"))
		return nil
	}

	if len(backend.Targets) == 0 {
		writeResponse(w, errResponse(req.ID, errCodeNoTargets, "mcp backend has no targets configured"))
		return nil
	}

	var ruleSets []store.Policy
	var authn *store.Policy
	if r.Policies != nil {
		ruleSets, authn = r.Policies.McpPolicies(backendName)
	}

	claims, err := r.authenticate(ctx, authn, bearerToken(httpReq.Header.Get("Authorization")))
	if err != nil {
		writeResponse(w, errResponse(req.ID, errCodeUnauthorized, err.Error()))
		return nil
	}

	resp, err := r.route(ctx, backendName, backend, ruleSets, claims, &req)
	if err != nil {
		r.logger().Error("mcp relay dispatch failed", "backend", backendName, "method", req.Method, "error", err)
		writeResponse(w, errResponse(req.ID, errCodeInternal, err.Error()))
		return nil
	}
	writeResponse(w, resp)
	return nil
}

func (r *Relay) route(ctx context.Context, backendName string, backend *store.McpBackend, ruleSets []store.Policy, claims *jwtauth.Claims, req *request) (*response, error) {
	switch req.Method {
	case "initialize":
		return r.handleInitialize(req)
	case "notifications/initialized", "initialized":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return r.handleToolsList(ctx, req.ID, backend)
	case "tools/call":
		return r.handleToolsCall(ctx, backendName, backend, ruleSets, claims, req)
	default:
		return errResponse(req.ID, errCodeMethodNotFound, "method not supported by mcp relay: "+req.Method), nil
	}
}

func (r *Relay) handleInitialize(req *request) (*response, error) {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name": "sentinel-gate-mcp-relay",
		},
	})
}

func (r *Relay) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return defaultHTTPClient()
}

func (r *Relay) handleToolsList(ctx context.Context, id json.RawMessage, backend *store.McpBackend) (*response, error) {
	type targetTools struct {
		target string
		tools  []toolDescriptor
		err    error
	}

	results := make([]targetTools, len(backend.Targets))
	var wg sync.WaitGroup
	for i, t := range backend.Targets {
		wg.Add(1)
		go func(i int, t store.McpTarget) {
			defer wg.Done()
			tools, err := r.listTargetTools(ctx, t)
			results[i] = targetTools{target: t.Name, tools: tools, err: err}
		}(i, t)
	}
	wg.Wait()

	var all []toolDescriptor
	for _, res := range results {
		if res.err != nil {
			r.logger().Warn("mcp target tools/list failed", "target", res.target, "error", res.err)
			continue
		}
		for _, tool := range res.tools {
			all = append(all, toolDescriptor{
				Name:        qualify(res.target, tool.Name),
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	return resultResponse(id, toolsListResult{Tools: all})
}

func (r *Relay) listTargetTools(ctx context.Context, target store.McpTarget) ([]toolDescriptor, error) {
	listReq := &request{JSONRPC: "2.0", Method: "tools/list"}
	resp, err := dispatchTarget(ctx, r.httpClient(), target, listReq)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("target error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

func (r *Relay) handleToolsCall(ctx context.Context, backendName string, backend *store.McpBackend, ruleSets []store.Policy, claims *jwtauth.Claims, req *request) (*response, error) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, errCodeInvalidParams, "invalid tools/call params"), nil
	}

	targetName, toolName, ok := splitQualified(params.Name)
	if !ok {
		return errResponse(req.ID, errCodeMethodNotFound, "unknown tool "+params.Name), nil
	}

	target, ok := findTarget(backend, targetName)
	if !ok {
		return errResponse(req.ID, errCodeMethodNotFound, "unknown mcp target "+targetName), nil
	}

	var subject string
	var rawClaims map[string]any
	if claims != nil {
		subject = claims.Subject
		rawClaims = claims.Raw
	}
	evalCtx := buildEvalContext(backendName, subject, rawClaims, toolName, params.Arguments)
	allowed, err := r.authorizeToolCall(ctx, ruleSets, evalCtx)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return errResponse(req.ID, errCodeUnauthorized, "tool call denied by policy"), nil
	}

	upstreamParams, err := json.Marshal(toolsCallParams{Name: toolName, Arguments: params.Arguments})
	if err != nil {
		return nil, fmt.Errorf("encode upstream tools/call params: %w", err)
	}
	upstreamReq := &request{JSONRPC: "2.0", ID: req.ID, Method: "tools/call", Params: upstreamParams}

	resp, err := dispatchTarget(ctx, r.httpClient(), target, upstreamReq)
	if err != nil {
		return nil, fmt.Errorf("call target %s: %w", targetName, err)
	}
	resp.ID = req.ID
	return resp, nil
}

func findTarget(backend *store.McpBackend, name string) (store.McpTarget, bool) {
	for _, t := range backend.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return store.McpTarget{}, false
}

func writeResponse(w http.ResponseWriter, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
