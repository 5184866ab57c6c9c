// Package bindrt owns the accepted-connection side of the gateway: one TCP
// listener per store.Bind, demultiplexed once up front into the right
// termination path (HBONE, TLS, or cleartext), wired into the drain
// protocol so the accept loop never itself blocks shutdown.
package bindrt

import "github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"

// termination is the path a Bind's accepted connections take, decided once
// by scanning its listeners.
type termination int

const (
	terminationHTTPCleartext termination = iota
	terminationTLSThenHTTP
	terminationTLSThenTCP
	terminationTCP
	terminationHBONE
)

// String renders the termination path as a metrics label value.
func (t termination) String() string {
	switch t {
	case terminationHTTPCleartext:
		return "http_cleartext"
	case terminationTLSThenHTTP:
		return "tls_http"
	case terminationTLSThenTCP:
		return "tls_tcp"
	case terminationTCP:
		return "tcp"
	case terminationHBONE:
		return "hbone"
	default:
		return "unknown"
	}
}

// classify scans a bind's listeners once and picks the termination path for
// every connection it accepts, in priority order: HBONE > HTTPS > TLS > TCP
// > cleartext HTTP.
func classify(listeners map[string]*store.Listener) termination {
	var sawHTTPS, sawTLS, sawTCP bool
	for _, l := range listeners {
		switch l.Protocol {
		case store.ProtocolHBONE:
			return terminationHBONE
		case store.ProtocolHTTPS:
			sawHTTPS = true
		case store.ProtocolTLS:
			sawTLS = true
		case store.ProtocolTCP:
			sawTCP = true
		}
	}
	switch {
	case sawHTTPS:
		return terminationTLSThenHTTP
	case sawTLS:
		return terminationTLSThenTCP
	case sawTCP:
		return terminationTCP
	default:
		return terminationHTTPCleartext
	}
}
