package bindrt

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/httpproxy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/tcpproxy"
)

// serveTCP performs SNI-matched route selection (the first matching route
// in configured order, via tcpproxy.MatchRoute), weighted-random backend
// choice, then an adaptive-buffer bidirectional copy. sni is "" for a plain
// (non-TLS) TCP listener, where the first route with no hostnames or a "*"
// hostname is used.
func (rt *Runtime) serveTCP(conn net.Conn, routes []*store.TCPRoute, sni string, forceShutdown <-chan struct{}) {
	defer conn.Close()

	route := tcpproxy.MatchRoute(routes, sni)
	if route == nil {
		rt.logger.Debug("tcp: no route matches", "sni", sni)
		return
	}

	ref, err := httpproxy.SelectBackend(route.Backends)
	if err != nil {
		rt.logger.Debug("tcp: no valid backend", "route", route.Key, "error", err)
		return
	}
	backend, ok := rt.Store.Backend(ref.BackendRef)
	if !ok {
		rt.logger.Debug("tcp: backend not found", "ref", ref.BackendRef)
		return
	}
	target, err := httpproxy.ResolveEndpoint(backend, rt.Discovery, discovery.ResolveParams{LocalLocality: rt.LocalLocality})
	if err != nil {
		rt.logger.Debug("tcp: resolve endpoint failed", "backend", backend.Name, "error", err)
		return
	}

	upstream, err := dialTarget(target)
	if err != nil {
		rt.logger.Debug("tcp: dial upstream failed", "address", target.Address, "error", err)
		return
	}
	defer upstream.Close()

	tcpproxy.CopyBidirectionalWithForce(conn, upstream, forceShutdown)
}

func dialTarget(target httpproxy.DialTarget) (net.Conn, error) {
	if target.Transport == httpproxy.TransportTLS {
		host, _, _ := net.SplitHostPort(target.Address)
		return tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", target.Address, &tls.Config{ServerName: host})
	}
	return net.DialTimeout("tcp", target.Address, 10*time.Second)
}
