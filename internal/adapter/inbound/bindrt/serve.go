package bindrt

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/drain"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// onceListener adapts a single already-accepted net.Conn into a net.Listener
// that yields it exactly once, so http.Server's connection-handling
// machinery (timeouts, graceful Shutdown, h2c upgrade detection) can be
// reused for a connection this package accepted and TLS-terminated itself.
type onceListener struct {
	conn   net.Conn
	used   bool
	closed chan struct{}
}

func (l *onceListener) Accept() (net.Conn, error) {
	if !l.used {
		l.used = true
		return l.conn, nil
	}
	<-l.closed
	return nil, io.EOF
}

func (l *onceListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

func (l *onceListener) Addr() net.Addr { return l.conn.LocalAddr() }

// serveOneConn serves handler over conn for the connection's lifetime.
// Negotiated h2 (ALPN "h2" on an already-terminated TLS connection) is
// served directly via http2.Server.ServeConn; everything else goes through
// http.Server wrapped in h2c.NewHandler, which upgrades cleartext h2c
// connections by prior-knowledge or the Upgrade header and otherwise
// serves plain HTTP/1.1.
//
// If watch is non-nil, a drain start asks the connection to wind down
// gracefully (http.Server.Shutdown for h1/h2c; for a raw h2 ServeConn,
// golang.org/x/net/http2 exposes no per-connection GOAWAY hook outside
// http.Server's own h2 auto-configuration, so a drain there closes the
// connection immediately instead) and a subsequent force-shutdown signal
// closes it unconditionally.
func serveOneConn(conn net.Conn, handler http.Handler, watch *drain.Watch) {
	if tconn, ok := conn.(*tls.Conn); ok && tconn.ConnectionState().NegotiatedProtocol == "h2" {
		done := make(chan struct{})
		go func() {
			(&http2.Server{}).ServeConn(tconn, &http2.ServeConnOpts{Handler: handler})
			close(done)
		}()
		waitWithWatch(watch, done, func() { tconn.Close() }, func() { tconn.Close() })
		return
	}

	srv := &http.Server{Handler: h2c.NewHandler(handler, &http2.Server{})}
	ln := &onceListener{conn: conn, closed: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ln)
		close(done)
	}()
	waitWithWatch(watch, done,
		func() { _ = srv.Shutdown(context.Background()) },
		func() { _ = srv.Close() })
}

// waitWithWatch blocks until done closes, triggering onGraceful when the
// drain starts and onForce if the force-shutdown signal fires before the
// connection finishes winding down on its own.
func waitWithWatch(watch *drain.Watch, done <-chan struct{}, onGraceful, onForce func()) {
	if watch == nil {
		<-done
		return
	}
	select {
	case <-watch.C():
		onGraceful()
	case <-done:
		return
	}
	select {
	case <-done:
	case <-watch.ForceC():
		onForce()
		<-done
	}
}
