// Package tcpproxy implements the raw-TCP/TLS-passthrough proxy: SNI-based
// route selection and an adaptive-buffer bidirectional byte copy.
package tcpproxy

import (
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// MatchRoute selects the first TCPRoute whose Hostnames match sni, using
// the same all-matches-or-none semantics as HTTP listener/SNI selection: a
// route with no Hostnames matches any SNI, one with Hostnames matches only
// if sni equals or is a wildcard-suffix match of one of them. Routes are
// tried in the order they were configured (the store does not sort TCP
// routes) and the first match wins, so an exact hostname is not preferred
// over a wildcard or hostname-less route listed before it.
func MatchRoute(routes []*store.TCPRoute, sni string) *store.TCPRoute {
	for _, r := range routes {
		if hostnameMatches(r.Hostnames, sni) {
			return r
		}
	}
	return nil
}

func hostnameMatches(hostnames []string, sni string) bool {
	if len(hostnames) == 0 {
		return true
	}
	sni = strings.ToLower(sni)
	for _, h := range hostnames {
		h = strings.ToLower(h)
		if h == "*" || h == sni {
			return true
		}
		if strings.HasPrefix(h, "*.") && strings.HasSuffix(sni, h[1:]) {
			return true
		}
	}
	return false
}
