package bindrt

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// lazyTLSAcceptor wraps a net.Conn so the TLS handshake doesn't pick a
// certificate until the ClientHello has been parsed. crypto/tls invokes
// GetConfigForClient with the parsed hello before the handshake proceeds,
// which is where SNI-based listener selection happens -- no
// manual ClientHello peeking is needed since the stdlib does it for us.
func lazyTLSAcceptor(conn net.Conn, listeners map[string]*store.Listener, certs CertResolver) *tls.Conn {
	cfg := &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			l := selectBySNI(listeners, hello.ServerName)
			if l == nil || l.TLS == nil {
				return nil, fmt.Errorf("bindrt: no TLS listener matches SNI %q", hello.ServerName)
			}
			cert, err := certs.Resolve(l.TLS.CertRef)
			if err != nil {
				return nil, fmt.Errorf("bindrt: resolve cert %q: %w", l.TLS.CertRef, err)
			}
			alpn := l.TLS.ALPNProtocols
			if len(alpn) == 0 {
				alpn = []string{"h2", "http/1.1"}
			}
			return &tls.Config{
				Certificates: []tls.Certificate{*cert},
				NextProtos:   alpn,
			}, nil
		},
	}
	return tls.Server(conn, cfg)
}

// negotiatedListener re-resolves which listener a completed TLS handshake
// landed on, so the caller can decide HTTP-vs-TCP serving for
// terminationTLSThenHTTP/terminationTLSThenTCP binds without re-parsing SNI.
func negotiatedListener(tconn *tls.Conn, listeners map[string]*store.Listener) *store.Listener {
	return selectBySNI(listeners, tconn.ConnectionState().ServerName)
}
