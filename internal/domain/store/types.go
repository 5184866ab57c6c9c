// Package store holds the gateway's routing configuration: binds, listeners,
// routes, backends and policies. It is the single source of truth consulted
// by the bind runtime and the proxy pipelines on every connection/request.
package store

import "encoding/json"

// Protocol identifies the wire protocol a Listener terminates.
type Protocol string

const (
	// ProtocolHTTP serves cleartext HTTP/1.1 or h2c.
	ProtocolHTTP Protocol = "http"
	// ProtocolHTTPS terminates TLS then serves HTTP.
	ProtocolHTTPS Protocol = "https"
	// ProtocolTLS terminates TLS then hands the plaintext stream to the TCP proxy.
	ProtocolTLS Protocol = "tls"
	// ProtocolTCP proxies the raw byte stream without termination.
	ProtocolTCP Protocol = "tcp"
	// ProtocolHBONE terminates an mTLS+H2 CONNECT tunnel from a peer workload.
	ProtocolHBONE Protocol = "hbone"
)

// TLSConfig names the material a Listener uses to terminate TLS.
// The actual certificate material is resolved at bind-runtime start from the
// CA client (an external collaborator); the store only carries the
// reference plus ALPN preferences.
type TLSConfig struct {
	// CertRef names the certificate/key pair to use (resolved externally).
	CertRef string
	// ALPNProtocols lists the protocols offered during the handshake, in
	// preference order (e.g. []string{"h2", "http/1.1"}).
	ALPNProtocols []string
}

// Bind is a listening socket shared by one or more Listeners, demultiplexed
// by SNI (TLS) or by being the bind's sole listener (plain).
type Bind struct {
	// Key is the bind's unique name.
	Key string
	// Address is the "ip:port" this bind listens on.
	Address string
	// Listeners is keyed by ListenerKey.
	Listeners map[string]*Listener
}

// clone returns a shallow copy of the Bind with its own Listeners map, so
// copy-on-write updates never mutate a value another goroutine may be
// reading concurrently.
func (b *Bind) clone() *Bind {
	if b == nil {
		return &Bind{Listeners: map[string]*Listener{}}
	}
	cp := &Bind{Key: b.Key, Address: b.Address, Listeners: make(map[string]*Listener, len(b.Listeners))}
	for k, v := range b.Listeners {
		cp.Listeners[k] = v
	}
	return cp
}

// Listener is a protocol family attached to a Bind.
type Listener struct {
	Key         string
	Name        string
	GatewayName string
	// Hostname is used for SNI/Host-header based listener selection when a
	// bind carries more than one HTTP(S)/TLS listener. Empty matches any.
	Hostname string
	Protocol Protocol
	TLS      *TLSConfig
	// Routes is non-empty only for HTTP/HTTPS listeners. HBONE listeners
	// carry no user routes — they only terminate the tunnel.
	Routes *RouteSet
	// TCPRoutes is the ordered list of routes for TLS/TCP listeners;
	// tcpproxy.MatchRoute picks the first one whose hostnames match the SNI.
	TCPRoutes []*TCPRoute
}

func (l *Listener) clone() *Listener {
	cp := *l
	if l.Routes != nil {
		cp.Routes = l.Routes.clone()
	}
	if l.TCPRoutes != nil {
		cp.TCPRoutes = append([]*TCPRoute(nil), l.TCPRoutes...)
	}
	return &cp
}

// RouteSet holds a listener's HTTP routes, kept in match-priority order.
type RouteSet struct {
	Routes []*Route
}

func (rs *RouteSet) clone() *RouteSet {
	if rs == nil {
		return &RouteSet{}
	}
	cp := &RouteSet{Routes: make([]*Route, len(rs.Routes))}
	copy(cp.Routes, rs.Routes)
	return cp
}

// PathMatchKind is the kind of path match a RouteMatch performs.
type PathMatchKind string

const (
	PathExact  PathMatchKind = "exact"
	PathPrefix PathMatchKind = "prefix"
	PathRegex  PathMatchKind = "regex"
)

// MatchRule matches a single header or query parameter.
type MatchRule struct {
	Name  string
	Value string
	// Regex, when true, treats Value as a regular expression.
	Regex bool
}

// RouteMatch is one matching rule of a Route; a Route matches a request if
// any one of its RouteMatch entries matches in full.
type RouteMatch struct {
	PathKind PathMatchKind
	Path     string
	Method   string
	Headers  []MatchRule
	Query    []MatchRule
}

// RouteBackendReference is one weighted backend choice for a matched route.
type RouteBackendReference struct {
	Weight     int
	BackendRef string
	Filters    []Filter
}

// Route is an HTTP matching rule: match -> filters -> weighted backends.
type Route struct {
	Key        string
	RouteName  string
	RuleName   string
	Hostnames  []string
	Matches    []RouteMatch
	Filters    []Filter
	Backends   []RouteBackendReference
	// Policies are policy names directly attached to this route (scope Route).
	Policies []string
}

// FilterKind enumerates the HTTP filter actions a route can apply.
type FilterKind string

const (
	FilterHeaderModifier FilterKind = "header_modifier"
	FilterRequestRedirect FilterKind = "request_redirect"
	FilterURLRewrite     FilterKind = "url_rewrite"
	FilterDirectResponse FilterKind = "direct_response"
	FilterRequestMirror  FilterKind = "request_mirror"
)

// Filter is a single ordered pipeline filter action attached to a route or
// route-backend-reference.
type Filter struct {
	Kind FilterKind

	// HeaderModifier fields.
	AddHeaders    map[string]string
	SetHeaders    map[string]string
	RemoveHeaders []string

	// RequestRedirect / UrlRewrite fields.
	Scheme    string
	Authority string
	Path      string
	// StatusCode is the redirect status for RequestRedirect (default 302).
	StatusCode int

	// DirectResponse fields.
	Body string

	// RequestMirror fields.
	MirrorBackendRef string
	// MirrorPercent is the sampling probability in [0,100].
	MirrorPercent float64
}

// TCPRoute is the TCP-proxy analogue of Route: SNI hostname match to a
// weighted set of backends.
type TCPRoute struct {
	Key       string
	Hostnames []string
	Backends  []RouteBackendReference
}

// BackendKind enumerates the Backend variants.
type BackendKind string

const (
	BackendService BackendKind = "service"
	BackendOpaque  BackendKind = "opaque"
	BackendMCP     BackendKind = "mcp"
	BackendAI      BackendKind = "ai"
	BackendDynamic BackendKind = "dynamic"
	BackendInvalid BackendKind = "invalid"
)

// Target is a concrete network destination for an Opaque backend.
type Target struct {
	Address  string // ip:port, mutually exclusive with Hostname
	Hostname string
	Port     int
}

// McpTargetKind enumerates MCP upstream transport variants.
type McpTargetKind string

const (
	McpTargetStdio   McpTargetKind = "stdio"
	McpTargetSSE     McpTargetKind = "sse"
	McpTargetOpenAPI McpTargetKind = "openapi"
)

// McpTarget is one upstream MCP server behind an MCP backend. Target names
// may not contain "_" — namespacing derives tool names as "<target>_<item>"
// and an underscore in the target name would make that ambiguous to parse
// back out (MCP target name collisions); InsertBackend enforces this.
type McpTarget struct {
	Name string
	Kind McpTargetKind

	// Stdio fields.
	Command string
	Args    []string
	Env     map[string]string

	// Sse / OpenAPI fields.
	Host    string
	Port    int
	Path    string
	TLS     bool
	Auth    string // opaque auth token/header reference
	Headers map[string]string

	// OpenAPI-only.
	SchemaSource string
}

// McpBackend configures an MCP relay backend: one or more upstream targets,
// fanned out and namespaced by the relay.
type McpBackend struct {
	Targets  []McpTarget
	Stateful bool
}

// AIProvider enumerates the LLM providers this gateway translates to/from.
type AIProvider string

const (
	ProviderOpenAI    AIProvider = "openai"
	ProviderAnthropic AIProvider = "anthropic"
	ProviderBedrock   AIProvider = "bedrock"
	ProviderVertex    AIProvider = "vertex"
)

// AIBackend configures an LLM-provider backend.
type AIBackend struct {
	Provider     AIProvider
	HostOverride string
	// Tokenize carries the config's pre-call tokenizer flag for
	// input_tokens accounting. The proxy does not read it and calls no
	// tokenizer.
	Tokenize bool
}

// Backend is a concrete destination a Route/TCPRoute can select.
type Backend struct {
	Name string
	Kind BackendKind

	// Service fields.
	ServiceHostname string
	ServicePort     int

	// Opaque fields.
	OpaqueName string
	OpaqueTgt  Target

	MCP *McpBackend
	AI  *AIBackend
}

// PolicyTarget is the scope a Policy is attached to.
type PolicyTarget string

const (
	TargetGateway   PolicyTarget = "gateway"
	TargetListener  PolicyTarget = "listener"
	TargetRoute     PolicyTarget = "route"
	TargetRouteRule PolicyTarget = "route_rule"
	TargetBackend   PolicyTarget = "backend"
)

// PolicyKind enumerates the Policy variants.
type PolicyKind string

const (
	PolicyLocalRateLimit  PolicyKind = "local_rate_limit"
	PolicyRemoteRateLimit PolicyKind = "remote_rate_limit"
	PolicyJwtAuth         PolicyKind = "jwt_auth"
	PolicyExtAuthz        PolicyKind = "ext_authz"
	PolicyMcpAuthorization PolicyKind = "mcp_authorization"
	PolicyMcpAuthentication PolicyKind = "mcp_authentication"
	PolicyBackendTLS      PolicyKind = "backend_tls"
	PolicyBackendAuth     PolicyKind = "backend_auth"
	PolicyA2A             PolicyKind = "a2a"
	PolicyAI              PolicyKind = "ai"
	PolicyTransformation  PolicyKind = "transformation"
	PolicyCors            PolicyKind = "cors"
)

// RateLimitKind distinguishes request-counted from token-counted limits.
type RateLimitKind string

const (
	RateLimitRequests RateLimitKind = "requests"
	RateLimitTokens   RateLimitKind = "tokens"
)

// BackendAuthKind enumerates backend authentication strategies.
type BackendAuthKind string

const (
	BackendAuthPassthrough BackendAuthKind = "passthrough"
	BackendAuthKey         BackendAuthKind = "key"
	BackendAuthGCP         BackendAuthKind = "gcp"
	BackendAuthAWS         BackendAuthKind = "aws"
)

// JwtMode controls how strictly JwtAuth enforces validation.
type JwtMode string

const (
	JwtStrict     JwtMode = "strict"
	JwtOptional   JwtMode = "optional"
	JwtPermissive JwtMode = "permissive"
)

// Policy is a typed configuration attached to a PolicyTarget.
type Policy struct {
	Name   string
	Target PolicyTarget
	// TargetRef names the specific gateway/listener/route/rule/backend this
	// policy attaches to.
	TargetRef string
	Kind      PolicyKind

	// LocalRateLimit / RemoteRateLimit fields.
	MaxTokens     int
	TokensPerFill int
	FillInterval  string
	RateLimitKind RateLimitKind
	RemoteService string

	// JwtAuth fields.
	Issuer    string
	Audiences []string
	JWKSURI   string
	JwtMode   JwtMode

	// ExtAuthz fields.
	ExtAuthzService string
	ExtAuthzContext map[string]string

	// McpAuthorization fields.
	CELRules []string

	// McpAuthentication fields.
	McpAudience string
	McpProvider string
	McpScopes   []string

	// BackendAuth field.
	BackendAuthKind BackendAuthKind
	BackendAuthKey  string

	// Transformation fields.
	TransformHeadersCEL map[string]string
	TransformBodyCEL    string

	// Cors fields.
	CorsAllowOrigins []string
	CorsAllowMethods []string
	CorsAllowHeaders []string
	CorsMaxAgeSec    int

	// AI fields (guard config), carried as opaque JSON to keep this package
	// free of an import cycle on internal/domain/llm/guard's rule types.
	AIGuardConfig json.RawMessage
}
