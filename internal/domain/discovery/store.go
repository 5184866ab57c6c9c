package discovery

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
)

// Store holds Workloads and Services keyed by UID, network address, and
// namespaced hostname. Like internal/domain/store it is a
// read-mostly structure guarded by a single RWMutex; writers replace the
// relevant map entry rather than mutating in place, so a resolution in
// flight never observes a half-updated Workload or Service.
type Store struct {
	mu sync.RWMutex

	workloadsByUID map[string]*Workload
	// workloadsByAddr indexes workloads by "network/ip" for reverse lookups
	// (e.g. resolving the local workload's own locality from its bind address).
	workloadsByAddr map[string]*Workload

	services map[NamespacedHostname]*Service
}

// New creates an empty discovery Store.
func New() *Store {
	return &Store{
		workloadsByUID:  map[string]*Workload{},
		workloadsByAddr: map[string]*Workload{},
		services:        map[NamespacedHostname]*Service{},
	}
}

func addrKey(network, ip string) string { return network + "/" + ip }

// UpsertWorkload inserts or replaces a Workload by UID.
func (s *Store) UpsertWorkload(w *Workload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.workloadsByUID[w.UID]; ok {
		for _, ip := range old.WorkloadIPs {
			delete(s.workloadsByAddr, addrKey(old.Network, ip))
		}
	}
	s.workloadsByUID[w.UID] = w
	for _, ip := range w.WorkloadIPs {
		s.workloadsByAddr[addrKey(w.Network, ip)] = w
	}
}

// RemoveWorkload deletes a Workload by UID.
func (s *Store) RemoveWorkload(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloadsByUID[uid]
	if !ok {
		return
	}
	delete(s.workloadsByUID, uid)
	for _, ip := range w.WorkloadIPs {
		delete(s.workloadsByAddr, addrKey(w.Network, ip))
	}
}

// Workload looks up a workload by UID.
func (s *Store) Workload(uid string) (*Workload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workloadsByUID[uid]
	return w, ok
}

// WorkloadByAddress looks up a workload owning the given network/IP pair,
// used to resolve the local workload's own locality for scope matching.
func (s *Store) WorkloadByAddress(network, ip string) (*Workload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workloadsByAddr[addrKey(network, ip)]
	return w, ok
}

// UpsertService inserts or replaces a Service by namespaced hostname.
func (s *Store) UpsertService(svc *Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[NamespacedHostname{Namespace: svc.Namespace, Hostname: svc.Hostname}] = svc
}

// RemoveService deletes a Service by namespaced hostname.
func (s *Store) RemoveService(ns NamespacedHostname) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, ns)
}

// Service looks up a service by namespace and hostname.
func (s *Store) Service(ns NamespacedHostname) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[ns]
	return svc, ok
}

// AllWorkloads returns every workload currently stored, for callers (the
// sqlite snapshot persistence adapter) that need a full dump rather than a
// single lookup.
func (s *Store) AllWorkloads() []*Workload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Workload, 0, len(s.workloadsByUID))
	for _, w := range s.workloadsByUID {
		out = append(out, w)
	}
	return out
}

// AllServices returns every service currently stored, symmetric with
// AllWorkloads.
func (s *Store) AllServices() []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	return out
}

// ResolveParams carries the request-scoped inputs to endpoint resolution
// that are not part of the Service/Workload data model itself.
type ResolveParams struct {
	// ServicePort is the port the route declared on the Service backend.
	ServicePort int
	// PreferredFamily restricts candidate endpoints by IP version; empty
	// means unrestricted.
	PreferredFamily IPFamily
	// LocalLocality is the locality of the workload the gateway itself runs
	// as, used for load-balancer scope matching.
	LocalLocality Locality
}

// ResolvedEndpoint is one candidate returned by Resolve: a dialable address
// plus the workload capacity weight used for the final weighted choice.
type ResolvedEndpoint struct {
	WorkloadUID string
	Address     string
	Port        int
	Weight      int
}

// ErrNoHealthyEndpoints is returned when a Service resolves to zero
// candidate endpoints after IP-family, locality, and health filtering —
// mapped to a 503 by the HTTP proxy pipeline.
var ErrNoHealthyEndpoints = fmt.Errorf("discovery: no healthy endpoints")

// Resolve filters a Service's endpoints by IP
// family, locality load-balancer scope, and health policy, then perform a
// capacity-weighted random pick. Port resolution is endpoint override >
// service target port > error, applied per candidate before the final pick
// so a misconfigured single endpoint doesn't sink the whole resolution.
func (s *Store) Resolve(ns NamespacedHostname, params ResolveParams) (ResolvedEndpoint, error) {
	s.mu.RLock()
	svc, ok := s.services[ns]
	if !ok {
		s.mu.RUnlock()
		return ResolvedEndpoint{}, fmt.Errorf("discovery: service %s/%s not found", ns.Namespace, ns.Hostname)
	}

	targetPort, hasPort := svc.Ports[params.ServicePort]

	type candidate struct {
		workload *Workload
		endpoint Endpoint
	}
	var candidates []candidate
	for uid, ep := range svc.Endpoints {
		w, ok := s.workloadsByUID[uid]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{workload: w, endpoint: ep})
	}
	s.mu.RUnlock()

	// Health policy filter, default healthy-only.
	healthPolicy := HealthPolicyHealthyOnly
	if svc.LoadBalancer != nil && svc.LoadBalancer.HealthPolicy != "" {
		healthPolicy = svc.LoadBalancer.HealthPolicy
	}
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if healthPolicy == HealthPolicyHealthyOnly {
			if c.workload.Status != HealthHealthy || c.endpoint.Status != HealthHealthy {
				continue
			}
		}
		filtered = append(filtered, c)
	}

	// IP family filter.
	if params.PreferredFamily != "" && params.PreferredFamily != IPFamilyDual {
		famFiltered := filtered[:0:0]
		for _, c := range filtered {
			if hasAddressFamily(c.workload.WorkloadIPs, params.PreferredFamily) {
				famFiltered = append(famFiltered, c)
			}
		}
		filtered = famFiltered
	}

	// Locality scope filter/preference.
	if svc.LoadBalancer != nil && len(svc.LoadBalancer.Scopes) > 0 {
		matched := filtered[:0:0]
		for _, c := range filtered {
			if localityMatches(c.workload.Locality, params.LocalLocality, svc.LoadBalancer.Scopes) {
				matched = append(matched, c)
			}
		}
		switch svc.LoadBalancer.Mode {
		case LBStrict:
			filtered = matched
		case LBFailover:
			if len(matched) > 0 {
				filtered = matched
			}
			// else: keep all of filtered (no match anywhere, fail open).
		case LBStandard, "":
			// scopes ignored entirely under Standard mode.
		}
	}

	if len(filtered) == 0 {
		return ResolvedEndpoint{}, ErrNoHealthyEndpoints
	}

	totalWeight := 0
	resolved := make([]ResolvedEndpoint, 0, len(filtered))
	for _, c := range filtered {
		port := targetPort
		if override, ok := c.endpoint.PortMap[params.ServicePort]; ok {
			port = override
		} else if !hasPort {
			continue
		}
		ip := ""
		if len(c.workload.WorkloadIPs) > 0 {
			ip = c.workload.WorkloadIPs[0]
		}
		if ip == "" {
			continue
		}
		weight := c.workload.Capacity
		if weight <= 0 {
			weight = 1
		}
		totalWeight += weight
		resolved = append(resolved, ResolvedEndpoint{
			WorkloadUID: c.workload.UID,
			Address:     net.JoinHostPort(ip, fmt.Sprintf("%d", port)),
			Port:        port,
			Weight:      weight,
		})
	}
	if len(resolved) == 0 {
		return ResolvedEndpoint{}, ErrNoHealthyEndpoints
	}

	return weightedPick(resolved, totalWeight), nil
}

func hasAddressFamily(ips []string, want IPFamily) bool {
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip == nil {
			continue
		}
		isV4 := ip.To4() != nil
		if want == IPFamilyIPv4 && isV4 {
			return true
		}
		if want == IPFamilyIPv6 && !isV4 {
			return true
		}
	}
	return false
}

func localityMatches(a, b Locality, scopes []LocalityScope) bool {
	for _, scope := range scopes {
		switch scope {
		case ScopeRegion:
			if a.Region != b.Region {
				return false
			}
		case ScopeZone:
			if a.Zone != b.Zone {
				return false
			}
		case ScopeSubzone:
			if a.Subzone != b.Subzone {
				return false
			}
		case ScopeNode:
			if a.Node != b.Node {
				return false
			}
		case ScopeCluster:
			if a.Cluster != b.Cluster {
				return false
			}
		case ScopeNetwork:
			if a.Network != b.Network {
				return false
			}
		}
	}
	return true
}

func weightedPick(candidates []ResolvedEndpoint, totalWeight int) ResolvedEndpoint {
	if totalWeight <= 0 {
		return candidates[rand.Intn(len(candidates))]
	}
	r := rand.Intn(totalWeight)
	for _, c := range candidates {
		if r < c.Weight {
			return c
		}
		r -= c.Weight
	}
	return candidates[len(candidates)-1]
}
