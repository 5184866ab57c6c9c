// Package httpproxy implements the HTTP/1.1 and HTTP/2 request pipeline: the
// bind runtime hands it an already-accepted connection's requests and it
// carries each one through listener/route selection, policy enforcement,
// backend selection, and upstream dispatch.
package httpproxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	celeval "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/cors"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/jwtauth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/llm"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/llm/guard"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
	"github.com/Sentinel-Gate/Sentinelgate/internal/telemetry"
)

// MCPDispatcher hands a matched request whose backend is an MCP relay off to
// the relay's own request/response handling, keeping this package free of a
// direct dependency on the MCP transport stack.
type MCPDispatcher interface {
	Dispatch(ctx context.Context, backendName string, backend *store.McpBackend, w http.ResponseWriter, r *http.Request) error
}

// Pipeline is the HTTP proxy's request handler: one instance is shared by
// every connection a bind accepts for HTTP/HTTPS listeners.
type Pipeline struct {
	Store     *store.Store
	Discovery *discovery.Store
	Clients   *ClientPool

	RateLimiter   ratelimit.RateLimiter
	TokenCharger  ratelimit.TokenCharger
	JWKSSources   func(p *store.Policy) jwtauth.KeySetSource
	CELEvaluator  *celeval.Evaluator
	MCP           MCPDispatcher

	// Metrics records request counts/durations by bind. Nil disables
	// recording.
	Metrics *telemetry.HTTPProxyMetrics

	// LocalLocality is this gateway's own locality, used for locality-aware
	// endpoint resolution.
	LocalLocality discovery.Locality
	// AWSRegion is passed through to the AWS SigV4 backend-auth signer.
	AWSRegion string

	GatewayName string
	BindKey     string
	ListenerKey string
}

// handle runs a request through all eleven pipeline steps, writing either
// the proxied upstream response or a pipeline.Error to w.
func (p *Pipeline) handle(w http.ResponseWriter, r *http.Request, tcp TCPConnectionInfo, tls *TLSConnectionInfo) {
	log := NewRequestLog(tcp, tls)
	w.Header().Set("X-Request-Id", log.RequestID)
	ctx := r.Context()

	listeners := p.Store.Listeners(p.BindKey)
	var candidates []*store.Listener
	for _, l := range listeners {
		candidates = append(candidates, l)
	}
	listener := SelectListener(candidates, r.Host)
	if listener == nil {
		writeError(w, newError(KindRouteNotFound, "no listener matches host "+r.Host, nil))
		return
	}
	var routes []*store.Route
	if listener.Routes != nil {
		routes = listener.Routes.Routes
	}
	route := SelectRoute(routes, r)
	if route == nil {
		writeError(w, newError(KindRouteNotFound, "no route matches "+r.Method+" "+r.URL.Path, nil))
		return
	}

	var ruleRef string
	if len(route.Policies) > 0 {
		ruleRef = route.Policies[0]
	}
	rp := p.Store.RoutePolicies(ruleRef, route.RouteName, p.GatewayName)

	needsBody := routeInspectsBody(rp)
	evalCtx, bodyReader, err := BuildRequestContext(r, needsBody)
	if err != nil {
		writeError(w, newError(KindProcessing, "build request context", err))
		return
	}
	r.Body = bodyReader

	if cors.IsPreflight(r) && rp.Cors != nil {
		if cors.ApplyPreflight(w, r, rp.Cors) {
			return
		}
	}

	if rp.Jwt != nil {
		claims, err := p.authenticateJWT(ctx, rp.Jwt, r)
		if err != nil {
			writeError(w, newError(KindAuthenticationFailed, "jwt validation failed", err))
			return
		}
		if claims != nil {
			evalCtx.JWTClaims = claims.Raw
		}
	}

	if rp.LocalRateLimit != nil {
		if perr := p.enforceLocalRateLimit(ctx, rp.LocalRateLimit, r); perr != nil {
			writeError(w, perr)
			return
		}
	}

	if rp.Transformation != nil {
		if err := p.applyTransformation(rp.Transformation, r, evalCtx); err != nil {
			writeError(w, newError(KindInvalidFilterConfig, "transformation", err))
			return
		}
	}

	fr, err := ApplyFilters(route.Filters, r)
	if err != nil {
		writeError(w, newError(KindInvalidFilterConfig, "apply filters", err))
		return
	}
	if fr.Direct != nil {
		if fr.Direct.StatusCode >= 300 && fr.Direct.StatusCode < 400 {
			w.Header().Set("Location", fr.Direct.Body)
			w.WriteHeader(fr.Direct.StatusCode)
			return
		}
		w.WriteHeader(fr.Direct.StatusCode)
		_, _ = w.Write([]byte(fr.Direct.Body))
		return
	}
	if fr.Mirror != nil {
		go p.fireMirror(fr.Mirror)
	}

	ref, perr := SelectBackend(route.Backends)
	if perr != nil {
		writeError(w, perr)
		return
	}
	backend, ok := p.Store.Backend(ref.BackendRef)
	if !ok {
		writeError(w, newError(KindBackendDoesNotExist, "backend "+ref.BackendRef+" not found", nil))
		return
	}

	if backend.Kind == store.BackendMCP {
		if p.MCP == nil {
			writeError(w, newError(KindProcessing, "mcp relay not configured", nil))
			return
		}
		if err := p.MCP.Dispatch(ctx, backend.Name, backend.MCP, w, r); err != nil {
			writeError(w, newError(KindUpstreamCallFailed, "mcp relay", err))
		}
		return
	}

	bp := p.Store.BackendPolicies(backend.Name)

	target, perr := ResolveEndpoint(backend, p.Discovery, discovery.ResolveParams{LocalLocality: p.LocalLocality})
	if perr != nil {
		writeError(w, perr)
		return
	}

	if backend.Kind == store.BackendAI && backend.AI != nil {
		p.dispatchLLM(w, r, log, backend, target, bp)
		return
	}

	if bp.BackendAuth != nil {
		if err := ApplyBackendAuth(ctx, r, bp.BackendAuth, p.AWSRegion); err != nil {
			writeError(w, newError(KindBackendAuthFailed, "backend auth", err))
			return
		}
	}

	p.dispatchGeneric(w, r, log, target)
}

func routeInspectsBody(rp store.RoutePolicies) bool {
	var exprs []string
	if rp.Transformation != nil {
		exprs = append(exprs, rp.Transformation.TransformBodyCEL)
		for _, v := range rp.Transformation.TransformHeadersCEL {
			exprs = append(exprs, v)
		}
	}
	return referencesRequestBody(exprs)
}

func (p *Pipeline) authenticateJWT(ctx context.Context, pol *store.Policy, r *http.Request) (*jwtauth.Claims, error) {
	if p.JWKSSources == nil {
		return nil, fmt.Errorf("httpproxy: no jwks source configured")
	}
	v := &jwtauth.Validator{Policy: pol, Keys: p.JWKSSources(pol)}
	token := bearerToken(r)
	return v.Validate(ctx, token)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (p *Pipeline) enforceLocalRateLimit(ctx context.Context, pol *store.Policy, r *http.Request) *Error {
	if p.RateLimiter == nil {
		return nil
	}
	key := ratelimit.FormatKey(ratelimit.KeyTypeIP, r.RemoteAddr)
	cfg := ratelimit.RateLimitConfig{Rate: pol.TokensPerFill, Burst: pol.MaxTokens}
	if d, err := time.ParseDuration(pol.FillInterval); err == nil {
		cfg.Period = d
	}
	result, err := p.RateLimiter.Allow(ctx, key, cfg)
	if err != nil {
		return newError(KindProcessing, "rate limit check", err)
	}
	if !result.Allowed {
		return newError(KindRateLimited, "rate limited, retry after "+result.RetryAfter.String(), nil)
	}
	return nil
}

func (p *Pipeline) applyTransformation(pol *store.Policy, r *http.Request, evalCtx policy.EvaluationContext) error {
	if p.CELEvaluator == nil {
		return nil
	}
	for name, expr := range pol.TransformHeadersCEL {
		prg, err := p.CELEvaluator.Compile(expr)
		if err != nil {
			return fmt.Errorf("compile header transform %q: %w", name, err)
		}
		activation := celeval.BuildUniversalActivation(evalCtx)
		out, _, err := prg.ContextEval(r.Context(), activation)
		if err != nil {
			return fmt.Errorf("eval header transform %q: %w", name, err)
		}
		if s, ok := out.Value().(string); ok {
			r.Header.Set(name, s)
		}
	}
	return nil
}

func (p *Pipeline) fireMirror(m *MirrorRequest) {
	backend, ok := p.Store.Backend(m.BackendRef)
	if !ok {
		return
	}
	target, err := ResolveEndpoint(backend, p.Discovery, discovery.ResolveParams{LocalLocality: p.LocalLocality})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resp, err := p.Clients.Do(ctx, m.BackendRef, target.Address, target.Transport, nil, nil, m.Request)
	if err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// dispatchGeneric proxies r to target, retrying once with the replayed body
// if the first attempt fails with a network error rather than an upstream
// response. A graceful peer disconnect is not retried —
// the client is already gone.
func (p *Pipeline) dispatchGeneric(w http.ResponseWriter, r *http.Request, log *RequestLog, target DialTarget) {
	replay, body, err := CaptureReplayBody(r.Body)
	if err != nil {
		writeError(w, newError(KindProcessing, "capture replay body", err))
		return
	}
	r.Body = body

	resp, err := p.attemptDispatch(r, target, replay.Reader())
	if err != nil && !isGracefulDisconnect(err) {
		resp, err = p.attemptDispatch(r, target, replay.Reader())
	}
	if err != nil {
		if isGracefulDisconnect(err) {
			return
		}
		writeError(w, newError(KindUpstreamCallFailed, "upstream call failed", err))
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	logBody := NewLogBody(resp.Body, func() map[string][]string { return resp.Trailer }, log)
	defer logBody.Close()
	_, _ = io.Copy(w, logBody)
}

func (p *Pipeline) attemptDispatch(r *http.Request, target DialTarget, body io.ReadCloser) (*http.Response, error) {
	upstreamReq := r.Clone(r.Context())
	upstreamReq.RequestURI = ""
	upstreamReq.URL.Scheme = "http"
	upstreamReq.URL.Host = target.Address
	if body != nil {
		upstreamReq.Body = body
	}
	return p.Clients.Do(r.Context(), target.Address, target.Address, target.Transport, nil, nil, upstreamReq)
}

func (p *Pipeline) dispatchLLM(w http.ResponseWriter, r *http.Request, log *RequestLog, backend *store.Backend, target DialTarget, bp store.BackendPolicies) {
	ctx := r.Context()
	provider, err := llm.ForProvider(backend.AI.Provider)
	if err != nil {
		writeError(w, newError(KindInvalidFilterConfig, "llm provider", err))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, newError(KindProcessing, "read llm request body", err))
		return
	}

	var creq llm.ChatCompletionRequest
	if err := decodeJSON(body, &creq); err != nil {
		writeError(w, newError(KindProcessing, "decode chat completion request", err))
		return
	}

	var guardCfg guard.Config
	if bp.LLM != nil {
		guardCfg, err = guard.DecodeConfig(bp.LLM.AIGuardConfig)
		if err != nil {
			writeError(w, newError(KindInvalidFilterConfig, "llm guard config", err))
			return
		}
		rejected, reject, err := applyGuardRules(guardCfg.PromptRules, creq.Messages)
		if err != nil {
			writeError(w, newError(KindInvalidFilterConfig, "llm prompt guard rule", err))
			return
		}
		if rejected {
			writeGuardReject(w, reject)
			return
		}
	}

	translated, err := provider.TranslateRequest(creq, backend.AI)
	if err != nil {
		writeError(w, newError(KindProcessing, "translate llm request", err))
		return
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+target.Address+translated.Path, newBodyReader(translated.Body))
	if err != nil {
		writeError(w, newError(KindProcessing, "build llm upstream request", err))
		return
	}
	upstreamReq.Host = translated.Host
	upstreamReq.Header.Set("Content-Type", "application/json")
	for k, v := range translated.AuthHeaders {
		upstreamReq.Header.Set(k, v)
	}

	if bp.BackendAuth != nil {
		if err := ApplyBackendAuth(ctx, upstreamReq, bp.BackendAuth, p.AWSRegion); err != nil {
			writeError(w, newError(KindBackendAuthFailed, "llm backend auth", err))
			return
		}
	}

	resp, err := p.Clients.Do(ctx, backend.Name, target.Address, target.Transport, nil, nil, upstreamReq)
	if err != nil {
		if isGracefulDisconnect(err) {
			return
		}
		writeError(w, newError(KindUpstreamCallFailed, "llm upstream call failed", err))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, newError(KindUpstreamCallFailed, "read llm response", err))
		return
	}

	var rlog llm.ResponseLog
	canonical, err := provider.TranslateResponse(respBody, &rlog)
	if err != nil {
		writeError(w, newError(KindProcessing, "translate llm response", err))
		return
	}
	rlog.Finalize()
	log.SetLLMResponse(&rlog)

	if bp.LLM != nil {
		messages := make([]llm.Message, len(canonical.Choices))
		for i, c := range canonical.Choices {
			messages[i] = c.Message
		}
		rejected, reject, err := applyGuardRules(guardCfg.ResponseRules, messages)
		if err != nil {
			writeError(w, newError(KindInvalidFilterConfig, "llm response guard rule", err))
			return
		}
		if rejected {
			writeGuardReject(w, reject)
			return
		}
		for i := range canonical.Choices {
			canonical.Choices[i].Message = messages[i]
		}
	}

	if p.TokenCharger != nil {
		// Token-kind local rate limits are charged post-hoc from the actual
		// usage the provider reported.
		_, _ = p.TokenCharger.Charge(ctx, ratelimit.FormatKey(ratelimit.KeyTypeIP, r.RemoteAddr), ratelimit.RateLimitConfig{}, rlog.TotalTokens)
	}

	out, err := encodeJSON(canonical)
	if err != nil {
		writeError(w, newError(KindProcessing, "encode llm response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(out)
}
