package bindrt

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/hbonepool"
	"golang.org/x/net/http2"
)

// serveHBONE performs the mTLS server handshake with the gateway's
// workload certificate, then serves HTTP/2 on the connection; every
// CONNECT request's authority becomes the new target address, and its
// body/response pair is fed back into the accept path as an ordinary
// connection carrying an extension that records the verified peer
// identities.
func (rt *Runtime) serveHBONE(conn net.Conn, identity WorkloadIdentity) {
	defer conn.Close()

	accepted := identity.AcceptedPeerIdentities()
	cfg := &tls.Config{
		ClientAuth: tls.RequireAnyClientCert,
		NextProtos: []string{"h2"},
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return identity.ServerCertificate()
		},
	}
	var verifiedPeers []string
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, chains [][]*x509.Certificate) error {
		if err := hbonepool.PeerVerifier(accepted)(rawCerts, chains); err != nil {
			return err
		}
		if len(rawCerts) > 0 {
			if leaf, err := x509.ParseCertificate(rawCerts[0]); err == nil {
				for _, u := range leaf.URIs {
					verifiedPeers = append(verifiedPeers, u.String())
				}
			}
		}
		return nil
	}

	tconn := tls.Server(conn, cfg)
	if err := tconn.Handshake(); err != nil {
		rt.log().Debug("hbone: handshake failed", "error", err)
		return
	}

	h2srv := &http2.Server{}
	h2srv.ServeConn(tconn, &http2.ServeConnOpts{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodConnect {
				http.Error(w, "hbone: only CONNECT is supported", http.StatusMethodNotAllowed)
				return
			}
			rt.handleHBONEConnect(w, r, tconn, verifiedPeers)
		}),
	})
}

func (rt *Runtime) handleHBONEConnect(w http.ResponseWriter, r *http.Request, tconn *tls.Conn, peerIdentities []string) {
	target := r.Host
	bind := rt.bindByAddress(target)
	if bind == nil {
		http.Error(w, "hbone: no local bind for target "+target, http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	stream, err := newHBONEStream(w, r, tconn.LocalAddr(), tconn.RemoteAddr())
	if err != nil {
		rt.log().Debug("hbone: cannot adapt CONNECT stream", "error", err)
		return
	}
	rt.handleInnerConnection(stream, bind, peerIdentities)
}
