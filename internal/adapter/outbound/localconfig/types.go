// Package localconfig is the local-file-sync alternative to xDS (
// LOCAL_XDS_PATH): a YAML/JSON document carrying the same bind/listener/
// route/backend/policy shapes an ADS snapshot would push, read from disk and
// applied to the routing store in one pass, with a watcher to pick up
// edits. The document's top-level "config:" section is opaque here -- only
// the binds/policies/backends shape is this package's concern, the config
// grammar itself is an external-collaborator contract.
package localconfig

// File is the top-level document shape: `config: {...}` plus sibling
// `binds`, `policies`, `backends` lists.
type File struct {
	Config   map[string]any `yaml:"config" json:"config"`
	Binds    []BindDoc      `yaml:"binds" json:"binds"`
	Policies []PolicyDoc    `yaml:"policies" json:"policies"`
	Backends []BackendDoc   `yaml:"backends" json:"backends"`
}

// BindDoc mirrors store.Bind, nesting its listeners and their routes inline
// rather than as flat, separately-keyed resources the way the xDS wire
// format does -- a local file describes one whole tree per bind.
type BindDoc struct {
	Key       string        `yaml:"key" json:"key"`
	Address   string        `yaml:"address" json:"address"`
	Listeners []ListenerDoc `yaml:"listeners" json:"listeners"`
}

type TLSConfigDoc struct {
	CertRef       string   `yaml:"cert_ref" json:"cert_ref"`
	ALPNProtocols []string `yaml:"alpn_protocols" json:"alpn_protocols"`
}

type ListenerDoc struct {
	Key         string        `yaml:"key" json:"key"`
	Name        string        `yaml:"name" json:"name"`
	GatewayName string        `yaml:"gateway_name" json:"gateway_name"`
	Hostname    string        `yaml:"hostname" json:"hostname"`
	Protocol    string        `yaml:"protocol" json:"protocol"`
	TLS         *TLSConfigDoc `yaml:"tls" json:"tls"`
	Routes      []RouteDoc    `yaml:"routes" json:"routes"`
	TCPRoutes   []TCPRouteDoc `yaml:"tcp_routes" json:"tcp_routes"`
}

type MatchRuleDoc struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
	Regex bool   `yaml:"regex" json:"regex"`
}

type RouteMatchDoc struct {
	PathKind string         `yaml:"path_kind" json:"path_kind"`
	Path     string         `yaml:"path" json:"path"`
	Method   string         `yaml:"method" json:"method"`
	Headers  []MatchRuleDoc `yaml:"headers" json:"headers"`
	Query    []MatchRuleDoc `yaml:"query" json:"query"`
}

type FilterDoc struct {
	Kind string `yaml:"kind" json:"kind"`

	AddHeaders    map[string]string `yaml:"add_headers" json:"add_headers"`
	SetHeaders    map[string]string `yaml:"set_headers" json:"set_headers"`
	RemoveHeaders []string          `yaml:"remove_headers" json:"remove_headers"`

	Scheme     string `yaml:"scheme" json:"scheme"`
	Authority  string `yaml:"authority" json:"authority"`
	Path       string `yaml:"path" json:"path"`
	StatusCode int    `yaml:"status_code" json:"status_code"`

	Body string `yaml:"body" json:"body"`

	MirrorBackendRef string  `yaml:"mirror_backend_ref" json:"mirror_backend_ref"`
	MirrorPercent    float64 `yaml:"mirror_percent" json:"mirror_percent"`
}

type RouteBackendReferenceDoc struct {
	Weight     int         `yaml:"weight" json:"weight"`
	BackendRef string      `yaml:"backend_ref" json:"backend_ref"`
	Filters    []FilterDoc `yaml:"filters" json:"filters"`
}

type RouteDoc struct {
	Key       string                     `yaml:"key" json:"key"`
	RouteName string                     `yaml:"route_name" json:"route_name"`
	RuleName  string                     `yaml:"rule_name" json:"rule_name"`
	Hostnames []string                   `yaml:"hostnames" json:"hostnames"`
	Matches   []RouteMatchDoc            `yaml:"matches" json:"matches"`
	Filters   []FilterDoc                `yaml:"filters" json:"filters"`
	Backends  []RouteBackendReferenceDoc `yaml:"backends" json:"backends"`
	Policies  []string                   `yaml:"policies" json:"policies"`
}

type TCPRouteDoc struct {
	Key       string                     `yaml:"key" json:"key"`
	Hostnames []string                   `yaml:"hostnames" json:"hostnames"`
	Backends  []RouteBackendReferenceDoc `yaml:"backends" json:"backends"`
}

type TargetDoc struct {
	Address  string `yaml:"address" json:"address"`
	Hostname string `yaml:"hostname" json:"hostname"`
	Port     int    `yaml:"port" json:"port"`
}

type McpTargetDoc struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`

	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`

	Host    string            `yaml:"host" json:"host"`
	Port    int               `yaml:"port" json:"port"`
	Path    string            `yaml:"path" json:"path"`
	TLS     bool              `yaml:"tls" json:"tls"`
	Auth    string            `yaml:"auth" json:"auth"`
	Headers map[string]string `yaml:"headers" json:"headers"`

	SchemaSource string `yaml:"schema_source" json:"schema_source"`
}

type McpBackendDoc struct {
	Targets  []McpTargetDoc `yaml:"targets" json:"targets"`
	Stateful bool           `yaml:"stateful" json:"stateful"`
}

type AIBackendDoc struct {
	Provider     string `yaml:"provider" json:"provider"`
	HostOverride string `yaml:"host_override" json:"host_override"`
	Tokenize     bool   `yaml:"tokenize" json:"tokenize"`
}

type BackendDoc struct {
	Key  string `yaml:"key" json:"key"`
	Kind string `yaml:"kind" json:"kind"`

	ServiceHostname string `yaml:"service_hostname" json:"service_hostname"`
	ServicePort     int    `yaml:"service_port" json:"service_port"`

	OpaqueName string     `yaml:"opaque_name" json:"opaque_name"`
	OpaqueTgt  *TargetDoc `yaml:"opaque_target" json:"opaque_target"`

	MCP *McpBackendDoc `yaml:"mcp" json:"mcp"`
	AI  *AIBackendDoc  `yaml:"ai" json:"ai"`
}

// PolicyDoc mirrors store.Policy as a flat field set; only the fields
// relevant to Kind are expected to be populated, same as the domain type.
type PolicyDoc struct {
	Name      string `yaml:"name" json:"name"`
	Target    string `yaml:"target" json:"target"`
	TargetRef string `yaml:"target_ref" json:"target_ref"`
	Kind      string `yaml:"kind" json:"kind"`

	MaxTokens     int    `yaml:"max_tokens" json:"max_tokens"`
	TokensPerFill int    `yaml:"tokens_per_fill" json:"tokens_per_fill"`
	FillInterval  string `yaml:"fill_interval" json:"fill_interval"`
	RateLimitKind string `yaml:"rate_limit_kind" json:"rate_limit_kind"`
	RemoteService string `yaml:"remote_service" json:"remote_service"`

	Issuer    string   `yaml:"issuer" json:"issuer"`
	Audiences []string `yaml:"audiences" json:"audiences"`
	JWKSURI   string   `yaml:"jwks_uri" json:"jwks_uri"`
	JwtMode   string   `yaml:"jwt_mode" json:"jwt_mode"`

	ExtAuthzService string            `yaml:"ext_authz_service" json:"ext_authz_service"`
	ExtAuthzContext map[string]string `yaml:"ext_authz_context" json:"ext_authz_context"`

	CELRules []string `yaml:"cel_rules" json:"cel_rules"`

	McpAudience string   `yaml:"mcp_audience" json:"mcp_audience"`
	McpProvider string   `yaml:"mcp_provider" json:"mcp_provider"`
	McpScopes   []string `yaml:"mcp_scopes" json:"mcp_scopes"`

	BackendAuthKind string `yaml:"backend_auth_kind" json:"backend_auth_kind"`
	BackendAuthKey  string `yaml:"backend_auth_key" json:"backend_auth_key"`

	TransformHeadersCEL map[string]string `yaml:"transform_headers_cel" json:"transform_headers_cel"`
	TransformBodyCEL    string            `yaml:"transform_body_cel" json:"transform_body_cel"`

	CorsAllowOrigins []string `yaml:"cors_allow_origins" json:"cors_allow_origins"`
	CorsAllowMethods []string `yaml:"cors_allow_methods" json:"cors_allow_methods"`
	CorsAllowHeaders []string `yaml:"cors_allow_headers" json:"cors_allow_headers"`
	CorsMaxAgeSec    int      `yaml:"cors_max_age_sec" json:"cors_max_age_sec"`

	AIGuardConfig map[string]any `yaml:"ai_guard_config" json:"ai_guard_config"`
}
