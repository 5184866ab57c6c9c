package bindrt

import (
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// selectBySNI picks the best-matching TLS-terminating listener (HTTPS or
// TLS) for a ClientHello server name, using the same specificity order as
// httpproxy.SelectListener: exact hostname > suffix wildcard > no-hostname
// catch-all.
func selectBySNI(listeners map[string]*store.Listener, sni string) *store.Listener {
	var exact, wildcard, catchAll *store.Listener
	for _, l := range listeners {
		if l.Protocol != store.ProtocolHTTPS && l.Protocol != store.ProtocolTLS {
			continue
		}
		switch {
		case l.Hostname == "":
			if catchAll == nil {
				catchAll = l
			}
		case l.Hostname == sni:
			if exact == nil {
				exact = l
			}
		case strings.HasPrefix(l.Hostname, "*.") && strings.HasSuffix(sni, l.Hostname[1:]):
			if wildcard == nil {
				wildcard = l
			}
		}
	}
	if exact != nil {
		return exact
	}
	if wildcard != nil {
		return wildcard
	}
	return catchAll
}
