package localconfig

import (
	"encoding/json"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

func toMatchRules(docs []MatchRuleDoc) []store.MatchRule {
	out := make([]store.MatchRule, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.MatchRule{Name: d.Name, Value: d.Value, Regex: d.Regex})
	}
	return out
}

func toRouteMatches(docs []RouteMatchDoc) []store.RouteMatch {
	out := make([]store.RouteMatch, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.RouteMatch{
			PathKind: store.PathMatchKind(d.PathKind),
			Path:     d.Path,
			Method:   d.Method,
			Headers:  toMatchRules(d.Headers),
			Query:    toMatchRules(d.Query),
		})
	}
	return out
}

func toFilters(docs []FilterDoc) []store.Filter {
	out := make([]store.Filter, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.Filter{
			Kind:             store.FilterKind(d.Kind),
			AddHeaders:       d.AddHeaders,
			SetHeaders:       d.SetHeaders,
			RemoveHeaders:    d.RemoveHeaders,
			Scheme:           d.Scheme,
			Authority:        d.Authority,
			Path:             d.Path,
			StatusCode:       d.StatusCode,
			Body:             d.Body,
			MirrorBackendRef: d.MirrorBackendRef,
			MirrorPercent:    d.MirrorPercent,
		})
	}
	return out
}

func toBackendRefs(docs []RouteBackendReferenceDoc) []store.RouteBackendReference {
	out := make([]store.RouteBackendReference, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.RouteBackendReference{
			Weight:     d.Weight,
			BackendRef: d.BackendRef,
			Filters:    toFilters(d.Filters),
		})
	}
	return out
}

func toRoute(d RouteDoc) *store.Route {
	return &store.Route{
		Key:       d.Key,
		RouteName: d.RouteName,
		RuleName:  d.RuleName,
		Hostnames: d.Hostnames,
		Matches:   toRouteMatches(d.Matches),
		Filters:   toFilters(d.Filters),
		Backends:  toBackendRefs(d.Backends),
		Policies:  d.Policies,
	}
}

func toTCPRoute(d TCPRouteDoc) *store.TCPRoute {
	return &store.TCPRoute{
		Key:       d.Key,
		Hostnames: d.Hostnames,
		Backends:  toBackendRefs(d.Backends),
	}
}

func toListener(d ListenerDoc) *store.Listener {
	l := &store.Listener{
		Key:         d.Key,
		Name:        d.Name,
		GatewayName: d.GatewayName,
		Hostname:    d.Hostname,
		Protocol:    store.Protocol(d.Protocol),
	}
	if d.TLS != nil {
		l.TLS = &store.TLSConfig{CertRef: d.TLS.CertRef, ALPNProtocols: d.TLS.ALPNProtocols}
	}
	if len(d.Routes) > 0 {
		rs := &store.RouteSet{Routes: make([]*store.Route, 0, len(d.Routes))}
		for _, rd := range d.Routes {
			rs.Routes = append(rs.Routes, toRoute(rd))
		}
		l.Routes = rs
	}
	for _, td := range d.TCPRoutes {
		l.TCPRoutes = append(l.TCPRoutes, toTCPRoute(td))
	}
	return l
}

// toBind converts a BindDoc into a *store.Bind with no listeners attached,
// returning its listeners separately -- the caller inserts the bind first, then its
// listeners, preserving the parent-before-child order InsertListener needs
// the same way the xDS ingest handler does.
func toBind(d BindDoc) (*store.Bind, []*store.Listener) {
	listeners := make([]*store.Listener, 0, len(d.Listeners))
	for _, ld := range d.Listeners {
		listeners = append(listeners, toListener(ld))
	}
	return &store.Bind{Key: d.Key, Address: d.Address, Listeners: map[string]*store.Listener{}}, listeners
}

func toBackend(d BackendDoc) (*store.Backend, error) {
	b := &store.Backend{
		Name:            d.Key,
		Kind:            store.BackendKind(d.Kind),
		ServiceHostname: d.ServiceHostname,
		ServicePort:     d.ServicePort,
		OpaqueName:      d.OpaqueName,
	}
	if d.OpaqueTgt != nil {
		b.OpaqueTgt = store.Target{Address: d.OpaqueTgt.Address, Hostname: d.OpaqueTgt.Hostname, Port: d.OpaqueTgt.Port}
	}
	if d.MCP != nil {
		mb := &store.McpBackend{Stateful: d.MCP.Stateful}
		for _, td := range d.MCP.Targets {
			mb.Targets = append(mb.Targets, store.McpTarget{
				Name:         td.Name,
				Kind:         store.McpTargetKind(td.Kind),
				Command:      td.Command,
				Args:         td.Args,
				Env:          td.Env,
				Host:         td.Host,
				Port:         td.Port,
				Path:         td.Path,
				TLS:          td.TLS,
				Auth:         td.Auth,
				Headers:      td.Headers,
				SchemaSource: td.SchemaSource,
			})
		}
		b.MCP = mb
	}
	if d.AI != nil {
		b.AI = &store.AIBackend{
			Provider:     store.AIProvider(d.AI.Provider),
			HostOverride: d.AI.HostOverride,
			Tokenize:     d.AI.Tokenize,
		}
	}
	return b, nil
}

func toPolicy(d PolicyDoc) (*store.Policy, error) {
	p := &store.Policy{
		Name:                d.Name,
		Target:              store.PolicyTarget(d.Target),
		TargetRef:           d.TargetRef,
		Kind:                store.PolicyKind(d.Kind),
		MaxTokens:           d.MaxTokens,
		TokensPerFill:       d.TokensPerFill,
		FillInterval:        d.FillInterval,
		RateLimitKind:       store.RateLimitKind(d.RateLimitKind),
		RemoteService:       d.RemoteService,
		Issuer:              d.Issuer,
		Audiences:           d.Audiences,
		JWKSURI:             d.JWKSURI,
		JwtMode:             store.JwtMode(d.JwtMode),
		ExtAuthzService:     d.ExtAuthzService,
		ExtAuthzContext:     d.ExtAuthzContext,
		CELRules:            d.CELRules,
		McpAudience:         d.McpAudience,
		McpProvider:         d.McpProvider,
		McpScopes:           d.McpScopes,
		BackendAuthKind:     store.BackendAuthKind(d.BackendAuthKind),
		BackendAuthKey:      d.BackendAuthKey,
		TransformHeadersCEL: d.TransformHeadersCEL,
		TransformBodyCEL:    d.TransformBodyCEL,
		CorsAllowOrigins:    d.CorsAllowOrigins,
		CorsAllowMethods:    d.CorsAllowMethods,
		CorsAllowHeaders:    d.CorsAllowHeaders,
		CorsMaxAgeSec:       d.CorsMaxAgeSec,
	}
	if d.AIGuardConfig != nil {
		raw, err := json.Marshal(d.AIGuardConfig)
		if err != nil {
			return nil, fmt.Errorf("localconfig: policy %q: marshal ai_guard_config: %w", d.Name, err)
		}
		p.AIGuardConfig = raw
	}
	return p, nil
}
