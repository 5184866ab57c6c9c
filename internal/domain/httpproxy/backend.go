package httpproxy

import (
	"fmt"
	"net"
	"strconv"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/tcpproxy"
)

// DialTarget is the concrete destination the proxy dials after backend
// selection and endpoint resolution.
type DialTarget struct {
	// Address is "host:port".
	Address   string
	Transport TransportKind
}

// SelectBackend performs the weighted-random choice over a route's backend
// references, reusing the TCP proxy's identical
// weighted-pick semantics since both select among []store.RouteBackendReference.
func SelectBackend(refs []store.RouteBackendReference) (store.RouteBackendReference, error) {
	ref, err := tcpproxy.ChooseBackend(refs)
	if err != nil {
		return store.RouteBackendReference{}, newError(KindNoValidBackends, "no valid backends", err)
	}
	return ref, nil
}

// ResolveEndpoint dials out a Backend to a concrete DialTarget. Service
// backends consult the discovery store; Opaque backends use
// their configured Target directly.
func ResolveEndpoint(backend *store.Backend, disco *discovery.Store, params discovery.ResolveParams) (DialTarget, error) {
	switch backend.Kind {
	case store.BackendOpaque:
		if backend.OpaqueTgt.Address != "" {
			return DialTarget{Address: backend.OpaqueTgt.Address, Transport: TransportPlaintext}, nil
		}
		return DialTarget{
			Address:   net.JoinHostPort(backend.OpaqueTgt.Hostname, strconv.Itoa(backend.OpaqueTgt.Port)),
			Transport: TransportPlaintext,
		}, nil

	case store.BackendService:
		ns := discovery.NamespacedHostname{Hostname: backend.ServiceHostname}
		params.ServicePort = backend.ServicePort
		ep, err := disco.Resolve(ns, params)
		if err != nil {
			return DialTarget{}, newError(KindNoHealthyEndpoints, "no healthy endpoints", err)
		}
		return DialTarget{Address: ep.Address, Transport: TransportTLS}, nil

	default:
		return DialTarget{}, newError(KindBackendDoesNotExist, fmt.Sprintf("backend kind %q has no dialable endpoint", backend.Kind), nil)
	}
}
