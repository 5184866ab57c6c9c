// Package discovery holds the Workload/Service/Endpoint model consulted by
// the HTTP and TCP proxy pipelines when resolving a Service backend to a
// concrete endpoint address.
package discovery

// NetworkMode distinguishes a workload's pod-network address from one
// sharing the host's network namespace.
type NetworkMode string

const (
	NetworkModeStandard     NetworkMode = "standard"
	NetworkModeHostNetwork  NetworkMode = "host_network"
)

// WorkloadProtocol is the transport a Workload accepts connections over.
type WorkloadProtocol string

const (
	WorkloadProtocolTCP   WorkloadProtocol = "tcp"
	WorkloadProtocolHBONE WorkloadProtocol = "hbone"
)

// HealthStatus is a Workload's or Endpoint's current health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Locality places a workload in a region/zone/subzone/node/cluster/network
// hierarchy, consulted by load-balancer scope matching.
type Locality struct {
	Region  string
	Zone    string
	Subzone string
	Node    string
	Cluster string
	Network string
}

// NamespacedHostname identifies a Service by its namespace-qualified name.
type NamespacedHostname struct {
	Namespace string
	Hostname  string
}

// Workload is one addressable unit of compute: a pod, VM, or similar.
type Workload struct {
	UID         string
	WorkloadIPs []string
	Network     string
	Protocol    WorkloadProtocol
	NetworkMode NetworkMode
	Services    []NamespacedHostname
	// Identity is the workload's SPIFFE identity, verified against the peer
	// certificate during HBONE termination/dialing.
	Identity string
	Locality Locality
	// Capacity weights this workload's share of a weighted endpoint choice.
	Capacity int
	Status   HealthStatus
}

// AppProtocol is the application-layer protocol spoken on a Service port.
type AppProtocol string

const (
	AppProtocolHTTP11 AppProtocol = "http1.1"
	AppProtocolHTTP2  AppProtocol = "http2"
	AppProtocolGRPC   AppProtocol = "grpc"
)

// Endpoint is a Workload's membership in one Service: its per-port mapping
// and health within that service's context.
type Endpoint struct {
	WorkloadUID string
	// PortMap overrides the service's target port for specific service
	// ports; absent entries fall back to the Service's own target port.
	PortMap map[int]int
	Status  HealthStatus
}

// LBMode controls how load-balancer scope matching is enforced.
type LBMode string

const (
	// LBStandard ignores locality scopes entirely.
	LBStandard LBMode = "standard"
	// LBStrict requires a locality scope match; no match means no endpoints.
	LBStrict LBMode = "strict"
	// LBFailover prefers a locality scope match but falls back to all
	// endpoints when none match.
	LBFailover LBMode = "failover"
)

// LocalityScope is one dimension of locality load-balancer matching.
type LocalityScope string

const (
	ScopeRegion  LocalityScope = "region"
	ScopeZone    LocalityScope = "zone"
	ScopeSubzone LocalityScope = "subzone"
	ScopeNode    LocalityScope = "node"
	ScopeCluster LocalityScope = "cluster"
	ScopeNetwork LocalityScope = "network"
)

// HealthPolicy controls whether unhealthy endpoints are filtered out.
type HealthPolicy string

const (
	HealthPolicyHealthyOnly HealthPolicy = "healthy_only"
	HealthPolicyAllowAll    HealthPolicy = "allow_all"
)

// LoadBalancer configures locality-aware endpoint selection for a Service.
type LoadBalancer struct {
	Scopes       []LocalityScope
	Mode         LBMode
	HealthPolicy HealthPolicy
}

// IPFamily restricts which address families an endpoint resolution may
// return.
type IPFamily string

const (
	IPFamilyDual IPFamily = "dual"
	IPFamilyIPv4 IPFamily = "ipv4"
	IPFamilyIPv6 IPFamily = "ipv6"
)

// Service groups a set of Workloads behind a stable hostname and port map.
type Service struct {
	Hostname  string
	Namespace string
	VIPs      []string
	// Ports maps a service port to the workload's target port.
	Ports map[int]int
	// AppProtocols maps a service port to its application protocol.
	AppProtocols map[int]AppProtocol
	// Endpoints is keyed by workload UID.
	Endpoints map[string]Endpoint
	// LoadBalancer is nil when the service uses default (Standard,
	// no-scopes, healthy-only) behavior.
	LoadBalancer *LoadBalancer
	// IPFamilies is empty when unrestricted (dual-stack).
	IPFamilies IPFamily
}
