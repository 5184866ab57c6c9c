package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EventKind distinguishes an Add from a Remove broadcast event.
type EventKind int

const (
	EventAdd EventKind = iota
	EventRemove
)

// Event is published on a Bind's lifecycle change.
type Event struct {
	Kind EventKind
	Bind *Bind
}

// defaultBroadcastCapacity bounds the per-subscriber event channel. A slow
// subscriber that falls behind this many events has its lagged channel
// closed and must resync from All().
const defaultBroadcastCapacity = 64

// ErrLagged is an error value describing a lagged subscriber. Nothing in
// this package returns it: lag is signalled by closing the subscriber's
// lagged channel.
type ErrLagged struct{}

func (ErrLagged) Error() string { return "store: subscriber lagged, resync from All()" }

// subscriber is one broadcast listener.
type subscriber struct {
	ch     chan Event
	lagged chan struct{}
}

// Store holds the gateway's entire routing configuration. Readers never
// block each other; writers clone-and-replace under a single RWMutex, so a
// writer never blocks on I/O — only on the (cheap) act of copying maps.
type Store struct {
	mu   sync.RWMutex
	// binds indexed by Bind.Key.
	binds map[string]*Bind
	// backends indexed by Backend.Name, independent of any bind (routes
	// reference backends by name; a backend may be shared by many routes).
	backends map[string]*Backend
	// policies indexed by Policy.Name.
	policies map[string]*Policy

	subMu sync.Mutex
	subs  map[int]*subscriber
	nextSub int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		binds:    map[string]*Bind{},
		backends: map[string]*Backend{},
		policies: map[string]*Policy{},
		subs:     map[int]*subscriber{},
	}
}

// Subscribe returns a channel of bind lifecycle events and an unsubscribe
// function. The channel is buffered; a subscriber that does not keep up
// receives a close of `lagged` rather than blocking the writer.
func (s *Store) Subscribe() (events <-chan Event, lagged <-chan struct{}, unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &subscriber{
		ch:     make(chan Event, defaultBroadcastCapacity),
		lagged: make(chan struct{}),
	}
	s.subs[id] = sub

	unsub := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, sub.lagged, unsub
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			// Subscriber fell behind: signal lag once, don't block the writer.
			select {
			case <-sub.lagged:
				// already signalled
			default:
				close(sub.lagged)
			}
			_ = id
		}
	}
}

// InsertBind creates or replaces a bind by key and broadcasts Event::Add.
func (s *Store) InsertBind(b *Bind) {
	if b.Listeners == nil {
		b.Listeners = map[string]*Listener{}
	}
	s.mu.Lock()
	s.binds[b.Key] = b
	s.mu.Unlock()
	s.publish(Event{Kind: EventAdd, Bind: b})
}

// RemoveBind deletes a bind by key and broadcasts Event::Remove. No-op if
// the bind does not exist.
func (s *Store) RemoveBind(key string) {
	s.mu.Lock()
	existing, ok := s.binds[key]
	if ok {
		delete(s.binds, key)
	}
	s.mu.Unlock()
	if ok {
		s.publish(Event{Kind: EventRemove, Bind: existing})
	}
}

// InsertListener clones the owning bind copy-on-write, inserts/replaces the
// listener, re-stores the bind and broadcasts Event::Add for the bind.
func (s *Store) InsertListener(bindKey string, l *Listener) error {
	s.mu.Lock()
	b, ok := s.binds[bindKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: insert listener: bind %q not found", bindKey)
	}
	cp := b.clone()
	cp.Listeners[l.Key] = l
	s.binds[bindKey] = cp
	s.mu.Unlock()
	s.publish(Event{Kind: EventAdd, Bind: cp})
	return nil
}

// RemoveListener symmetric with InsertListener.
func (s *Store) RemoveListener(bindKey, listenerKey string) error {
	s.mu.Lock()
	b, ok := s.binds[bindKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: remove listener: bind %q not found", bindKey)
	}
	cp := b.clone()
	delete(cp.Listeners, listenerKey)
	s.binds[bindKey] = cp
	s.mu.Unlock()
	s.publish(Event{Kind: EventAdd, Bind: cp})
	return nil
}

// InsertRoute clones bind -> listener -> route-set copy-on-write down to the
// root and re-inserts, per the "nested objects clone the parent path"
// invariant.
func (s *Store) InsertRoute(bindKey, listenerKey string, r *Route) error {
	s.mu.Lock()
	b, ok := s.binds[bindKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: insert route: bind %q not found", bindKey)
	}
	l, ok := b.Listeners[listenerKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: insert route: listener %q not found on bind %q", listenerKey, bindKey)
	}

	bindCp := b.clone()
	listenerCp := l.clone()
	if listenerCp.Routes == nil {
		listenerCp.Routes = &RouteSet{}
	}
	replaced := false
	for i, existing := range listenerCp.Routes.Routes {
		if existing.Key == r.Key {
			listenerCp.Routes.Routes[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		listenerCp.Routes.Routes = append(listenerCp.Routes.Routes, r)
	}
	sortRoutesBySpecificity(listenerCp.Routes.Routes)

	bindCp.Listeners[listenerKey] = listenerCp
	s.binds[bindKey] = bindCp
	s.mu.Unlock()
	s.publish(Event{Kind: EventAdd, Bind: bindCp})
	return nil
}

// RemoveRoute symmetric with InsertRoute.
func (s *Store) RemoveRoute(bindKey, listenerKey, routeKey string) error {
	s.mu.Lock()
	b, ok := s.binds[bindKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: remove route: bind %q not found", bindKey)
	}
	l, ok := b.Listeners[listenerKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: remove route: listener %q not found on bind %q", listenerKey, bindKey)
	}

	bindCp := b.clone()
	listenerCp := l.clone()
	if listenerCp.Routes != nil {
		kept := listenerCp.Routes.Routes[:0:0]
		for _, existing := range listenerCp.Routes.Routes {
			if existing.Key != routeKey {
				kept = append(kept, existing)
			}
		}
		listenerCp.Routes.Routes = kept
	}
	bindCp.Listeners[listenerKey] = listenerCp
	s.binds[bindKey] = bindCp
	s.mu.Unlock()
	s.publish(Event{Kind: EventAdd, Bind: bindCp})
	return nil
}

// pathSpecificityRank orders path match kinds for route ordering: exact is
// most specific, then regex, then prefix (longer prefix first, handled
// separately by path length).
func pathSpecificityRank(k PathMatchKind) int {
	switch k {
	case PathExact:
		return 0
	case PathRegex:
		return 1
	case PathPrefix:
		return 2
	default:
		return 3
	}
}

// routeRank computes a route's most-specific match rank, used to order
// routes within a listener: hostname specificity first (not
// modeled per-route here; hostname selection happens at listener level),
// then path-match specificity (exact > regex > longer prefix > shorter
// prefix), then header-count, then insertion order (stable sort preserves
// insertion order for ties).
func routeRank(r *Route) (kindRank int, negPathLen int, negHeaderCount int) {
	best := PathMatchKind("")
	bestLen := -1
	headerCount := 0
	for _, m := range r.Matches {
		rank := pathSpecificityRank(m.PathKind)
		if best == "" || rank < pathSpecificityRank(best) || (m.PathKind == best && len(m.Path) > bestLen) {
			best = m.PathKind
			bestLen = len(m.Path)
		}
		if len(m.Headers) > headerCount {
			headerCount = len(m.Headers)
		}
	}
	if best == "" {
		return 3, 0, 0
	}
	return pathSpecificityRank(best), -bestLen, -headerCount
}

func sortRoutesBySpecificity(routes []*Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		ki, li, hi := routeRank(routes[i])
		kj, lj, hj := routeRank(routes[j])
		if ki != kj {
			return ki < kj
		}
		if li != lj {
			return li < lj
		}
		return hi < hj
	})
}

// InsertBackend stores or replaces a backend by name. For MCP backends it
// enforces the MCP target-name-collision invariant: target names must not
// contain "_", since the relay namespaces tool names as "<target>_<item>".
func (s *Store) InsertBackend(b *Backend) error {
	if b.Kind == BackendMCP && b.MCP != nil {
		for _, t := range b.MCP.Targets {
			if strings.Contains(t.Name, "_") {
				return fmt.Errorf("store: mcp target name %q must not contain '_' (namespacing invariant)", t.Name)
			}
		}
	}
	s.mu.Lock()
	s.backends[b.Name] = b
	s.mu.Unlock()
	return nil
}

// RemoveBackend deletes a backend by name.
func (s *Store) RemoveBackend(name string) {
	s.mu.Lock()
	delete(s.backends, name)
	s.mu.Unlock()
}

// Backend looks up a backend by name.
func (s *Store) Backend(name string) (*Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backends[name]
	return b, ok
}

// InsertPolicy stores or replaces a policy by name.
func (s *Store) InsertPolicy(p *Policy) {
	s.mu.Lock()
	s.policies[p.Name] = p
	s.mu.Unlock()
}

// RemovePolicy deletes a policy by name.
func (s *Store) RemovePolicy(name string) {
	s.mu.Lock()
	delete(s.policies, name)
	s.mu.Unlock()
}

// Listeners returns the listener set attached to a bind.
func (s *Store) Listeners(bindKey string) map[string]*Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.binds[bindKey]
	if !ok {
		return nil
	}
	return b.Listeners
}

// All returns every bind currently stored. Each call takes a fresh
// read-lock snapshot; two successive calls are not guaranteed to observe a
// globally consistent view relative to a concurrent writer.
func (s *Store) All() []*Bind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Bind, 0, len(s.binds))
	for _, b := range s.binds {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// BackendNames returns every backend name currently stored. Used by
// full-resync callers (the local-file-sync loader) to diff the latest
// snapshot against what is already present and remove what dropped out.
func (s *Store) BackendNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.backends))
	for name := range s.backends {
		out = append(out, name)
	}
	return out
}

// PolicyNames returns every policy name currently stored, symmetric with
// BackendNames.
func (s *Store) PolicyNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.policies))
	for name := range s.policies {
		out = append(out, name)
	}
	return out
}

// RoutePolicies is the bundle of policies applicable to a matched route,
// collected in rule > route > gateway order, rule most specific.
type RoutePolicies struct {
	LocalRateLimit  *Policy
	RemoteRateLimit *Policy
	Jwt             *Policy
	ExtAuthz        *Policy
	Transformation  *Policy
	Cors            *Policy
}

// RoutePolicies collects all TargetedPolicy whose target matches the rule,
// route, or gateway scope, preferring the most specific (rule) match per
// kind when more than one applies.
func (s *Store) RoutePolicies(ruleRef, routeRef, gatewayRef string) RoutePolicies {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rp RoutePolicies
	// Iterate gateway -> route -> rule so rule-scoped policies, visited
	// last, overwrite the less specific match already assigned.
	for _, scope := range []struct {
		target PolicyTarget
		ref    string
	}{
		{TargetGateway, gatewayRef},
		{TargetRoute, routeRef},
		{TargetRouteRule, ruleRef},
	} {
		if scope.ref == "" {
			continue
		}
		for _, p := range s.policies {
			if p.Target != scope.target || p.TargetRef != scope.ref {
				continue
			}
			switch p.Kind {
			case PolicyLocalRateLimit:
				rp.LocalRateLimit = p
			case PolicyRemoteRateLimit:
				rp.RemoteRateLimit = p
			case PolicyJwtAuth:
				rp.Jwt = p
			case PolicyExtAuthz:
				rp.ExtAuthz = p
			case PolicyTransformation:
				rp.Transformation = p
			case PolicyCors:
				rp.Cors = p
			}
		}
	}
	return rp
}

// BackendPolicies is the bundle of policies applicable to a selected backend.
type BackendPolicies struct {
	BackendTLS  *Policy
	BackendAuth *Policy
	A2A         *Policy
	LLM         *Policy
}

// BackendPolicies collects policies targeting the named backend.
func (s *Store) BackendPolicies(backendName string) BackendPolicies {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bp BackendPolicies
	for _, p := range s.policies {
		if p.Target != TargetBackend || p.TargetRef != backendName {
			continue
		}
		switch p.Kind {
		case PolicyBackendTLS:
			bp.BackendTLS = p
		case PolicyBackendAuth:
			bp.BackendAuth = p
		case PolicyA2A:
			bp.A2A = p
		case PolicyAI:
			bp.LLM = p
		}
	}
	return bp
}

// McpPolicies collects all MCP authorization CEL rule sets and the single
// McpAuthentication policy (if any) targeting the named backend.
func (s *Store) McpPolicies(backendName string) (ruleSets []Policy, authn *Policy) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.policies {
		if p.Target != TargetBackend || p.TargetRef != backendName {
			continue
		}
		switch p.Kind {
		case PolicyMcpAuthorization:
			ruleSets = append(ruleSets, *p)
		case PolicyMcpAuthentication:
			authn = p
		}
	}
	return ruleSets, authn
}
