package bindrt

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/drain"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/httpproxy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
	"github.com/Sentinel-Gate/Sentinelgate/internal/telemetry"
)

// Runtime owns every store.Bind's listening socket in this process and
// dispatches each accepted connection to the termination path classify
// picks for that bind. One Runtime is shared across all binds
// so an HBONE tunnel landing on one bind can be routed to the local
// Pipeline of whichever bind its CONNECT authority names.
type Runtime struct {
	Store     *store.Store
	Discovery *discovery.Store

	Certs    CertResolver
	Workload WorkloadIdentity

	LocalLocality discovery.Locality

	// ReusePort enables SO_REUSEPORT on the listening socket, used in
	// thread-per-core deployments where multiple Runtimes bind the same
	// address from separate OS threads/processes.
	ReusePort bool

	// Deadlines records how long a draining bind keeps accepting new
	// connections (Min, discouraged but tolerated) and how long existing
	// connections get before a forced shutdown (Max). The value is only
	// stored: nothing in the process reads it, so a drain is not bounded
	// by these deadlines.
	Deadlines TerminationDeadlines

	Drain *drain.Drain

	// Metrics records connection lifecycle counters, by bind and
	// termination path. Nil is valid and disables recording.
	Metrics *telemetry.BindMetrics

	mu        sync.RWMutex
	pipelines map[string]*httpproxy.Pipeline

	logger *slog.Logger
}

// New creates a Runtime ready to have pipelines registered and binds run.
func New(st *store.Store, disco *discovery.Store, d *drain.Drain) *Runtime {
	return &Runtime{Store: st, Discovery: disco, Drain: d, pipelines: map[string]*httpproxy.Pipeline{}}
}

// RegisterPipeline attaches the HTTP proxy pipeline for bindKey, looked up
// by serveHTTPWithPeers and by HBONE inner-tunnel dispatch targeting that
// bind's address.
func (rt *Runtime) RegisterPipeline(bindKey string, p *httpproxy.Pipeline) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pipelines[bindKey] = p
}

func (rt *Runtime) pipelineFor(bindKey string) *httpproxy.Pipeline {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.pipelines[bindKey]
}

// Logger sets the runtime's logger; nil falls back to slog.Default().
func (rt *Runtime) Logger(l *slog.Logger) *Runtime {
	rt.logger = l
	return rt
}

func (rt *Runtime) log() *slog.Logger {
	if rt.logger != nil {
		return rt.logger
	}
	return slog.Default()
}

// Run binds bind.Address and serves forever, dispatching every accepted
// connection per the termination classify picks for bind's listener set.
// The accept loop holds only a weak drain reference (an Upgrader) so it
// never itself blocks drain completion; each accepted connection upgrades
// to a strong reference for its own lifetime. Run returns nil once ctx is
// cancelled and the listener closes, or the listener error otherwise.
func (rt *Runtime) Run(ctx context.Context, bind *store.Bind) error {
	lc := net.ListenConfig{}
	if rt.ReusePort {
		lc.Control = reusePortControl
	}
	ln, err := lc.Listen(ctx, "tcp", bind.Address)
	if err != nil {
		return err
	}
	defer ln.Close()

	upgrader := rt.Drain.NewUpgrader()
	go func() {
		<-ctx.Done()
		upgrader.Disable()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		watch, release, ok := upgrader.Upgrade()
		if !ok {
			conn.Close()
			continue
		}

		go func() {
			defer release()
			rt.dispatch(conn, bind, watch)
		}()
	}
}

// dispatch classifies bind once (the listener set is effectively static
// for the lifetime of one accepted connection) and routes conn down the
// matching termination path.
func (rt *Runtime) dispatch(conn net.Conn, bind *store.Bind, watch *drain.Watch) {
	term := classify(bind.Listeners)
	rt.recordAccept(bind.Key, term)
	defer rt.recordDone(bind.Key)

	switch term {
	case terminationHBONE:
		rt.serveHBONE(conn, rt.Workload)

	case terminationTLSThenHTTP:
		tconn := lazyTLSAcceptor(conn, bind.Listeners, rt.Certs)
		if err := tconn.Handshake(); err != nil {
			rt.log().Debug("tls handshake failed", "error", err)
			rt.recordTLSFailure(bind.Key)
			conn.Close()
			return
		}
		rt.serveHTTPWithPeers(tconn, bind.Key, nil, watch)

	case terminationTLSThenTCP:
		tconn := lazyTLSAcceptor(conn, bind.Listeners, rt.Certs)
		if err := tconn.Handshake(); err != nil {
			rt.log().Debug("tls handshake failed", "error", err)
			rt.recordTLSFailure(bind.Key)
			conn.Close()
			return
		}
		listener := negotiatedListener(tconn, bind.Listeners)
		var routes []*store.TCPRoute
		if listener != nil {
			routes = listener.TCPRoutes
		}
		rt.serveTCP(tconn, routes, tconn.ConnectionState().ServerName, watch.ForceC())

	case terminationTCP:
		rt.serveTCP(conn, firstTCPRoutes(bind.Listeners), "", watch.ForceC())

	default: // terminationHTTPCleartext
		rt.serveHTTPWithPeers(conn, bind.Key, nil, watch)
	}
}

func (rt *Runtime) recordAccept(bindKey string, term termination) {
	if rt.Metrics == nil {
		return
	}
	rt.Metrics.ConnectionsAccepted.WithLabelValues(bindKey, term.String()).Inc()
	rt.Metrics.ConnectionsActive.WithLabelValues(bindKey).Inc()
}

func (rt *Runtime) recordDone(bindKey string) {
	if rt.Metrics == nil {
		return
	}
	rt.Metrics.ConnectionsActive.WithLabelValues(bindKey).Dec()
}

func (rt *Runtime) recordTLSFailure(bindKey string) {
	if rt.Metrics == nil {
		return
	}
	rt.Metrics.TLSHandshakeFailure.WithLabelValues(bindKey).Inc()
}

func firstTCPRoutes(listeners map[string]*store.Listener) []*store.TCPRoute {
	for _, l := range listeners {
		if l.Protocol == store.ProtocolTCP {
			return l.TCPRoutes
		}
	}
	return nil
}

// bindByAddress looks up the store.Bind listening on addr, used by HBONE
// termination to route an inner CONNECT tunnel to the local bind its
// target authority names.
func (rt *Runtime) bindByAddress(addr string) *store.Bind {
	for _, b := range rt.Store.All() {
		if b.Address == addr {
			return b
		}
	}
	return nil
}

// handleInnerConnection feeds an HBONE tunnel's inner stream back into
// dispatch as if it had been accepted directly on bind, attaching the
// mTLS-verified peer identities so the HTTP pipeline's TLSConnectionInfo
// carries them through to policy evaluation and logging. There is no
// drain watch for an inner tunnel; its lifetime is bounded by the outer
// HBONE connection instead.
func (rt *Runtime) handleInnerConnection(conn net.Conn, bind *store.Bind, peerIdentities []string) {
	term := classify(bind.Listeners)
	switch term {
	case terminationTCP, terminationTLSThenTCP:
		rt.serveTCP(conn, firstTCPRoutes(bind.Listeners), "", nil)
	default:
		rt.serveHTTPWithPeers(conn, bind.Key, peerIdentities, nil)
	}
}

// serveHTTPWithPeers runs an HTTP/1.1+h2c(+h2 on negotiated TLS) server
// over conn for the connection's lifetime, wiring watch (if non-nil) so a
// graceful drain lets in-flight h1/h2c requests finish (http.Server.Shutdown)
// instead of dropping the connection outright. A connection that negotiated
// h2 over TLS is closed at once on drain; no GOAWAY frame is sent.
func (rt *Runtime) serveHTTPWithPeers(conn net.Conn, bindKey string, peerIdentities []string, watch *drain.Watch) {
	pipeline := rt.pipelineFor(bindKey)
	if pipeline == nil {
		rt.log().Debug("no pipeline registered for bind", "bind", bindKey)
		conn.Close()
		return
	}

	tcpInfo := httpproxy.TCPConnectionInfo{
		LocalAddr:  conn.LocalAddr().String(),
		RemoteAddr: conn.RemoteAddr().String(),
	}
	var tlsInfo *httpproxy.TLSConnectionInfo
	if tconn, ok := conn.(*tls.Conn); ok {
		state := tconn.ConnectionState()
		tlsInfo = &httpproxy.TLSConnectionInfo{ALPNProtocol: state.NegotiatedProtocol, HandshakeVersion: state.Version}
	}
	if len(peerIdentities) > 0 {
		if tlsInfo == nil {
			tlsInfo = &httpproxy.TLSConnectionInfo{ALPNProtocol: "hbone"}
		}
		tlsInfo.PeerIdentities = peerIdentities
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pipeline.Handle(w, r, tcpInfo, tlsInfo)
	})

	serveOneConn(conn, handler, watch)
}

// TerminationDeadlines are the draining timings for one bind:
// Min is how long a "closing" bind still accepts new connections (it
// discourages but tolerates them), Max is how long existing connections
// get before a forced shutdown.
type TerminationDeadlines struct {
	Min time.Duration
	Max time.Duration
}
