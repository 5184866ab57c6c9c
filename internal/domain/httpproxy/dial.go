package httpproxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/hbonepool"
)

// TransportKind enumerates the three ways the pipeline can reach an
// endpoint.
type TransportKind string

const (
	TransportPlaintext TransportKind = "plaintext"
	TransportTLS       TransportKind = "tls"
	TransportHBONE     TransportKind = "hbone"
)

// hbonePort is the fixed HBONE listening port on peer workloads.
const hbonePort = 15008

// poolKey identifies one pooled backend http.Client:
// "(target, endpoint-addr, transport, http-version)".
type poolKey struct {
	target      string
	endpointAddr string
	transport   TransportKind
	http2       bool
}

// ClientPool is the shared HTTP client pool keyed by (target, endpoint,
// transport, http-version), with HBONE dispatch routed through the HBONE
// pool instead of a plain *http.Client.
type ClientPool struct {
	mu      sync.Mutex
	clients map[poolKey]*http.Client
	hbone   *hbonepool.Pool
}

// NewClientPool creates a pool; hbone may be nil if no bind in this process
// terminates/originates HBONE traffic.
func NewClientPool(hbone *hbonepool.Pool) *ClientPool {
	return &ClientPool{clients: map[poolKey]*http.Client{}, hbone: hbone}
}

func (p *ClientPool) client(key poolKey, tlsConfig *tls.Config) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c
	}
	c := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		// Redirects are a route-level concern (RequestRedirect filter);
		// the backend dial itself must not silently follow them.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	p.clients[key] = c
	return c
}

// Do dispatches req to endpointAddr over transport for the named target
// backend, using HBONE pooling when transport is TransportHBONE.
func (p *ClientPool) Do(ctx context.Context, target, endpointAddr string, transport TransportKind, tlsConfig *tls.Config, peerIdentities []string, req *http.Request) (*http.Response, error) {
	switch transport {
	case TransportHBONE:
		if p.hbone == nil {
			return nil, fmt.Errorf("httpproxy: hbone transport selected but no hbone pool configured")
		}
		key := hbonepool.Key{DestinationIdentities: peerIdentities, DestinationAddr: fmt.Sprintf("%s:%d", hostOnly(endpointAddr), hbonePort)}
		return p.hbone.SendRequestPooled(ctx, key, req)
	default:
		key := poolKey{target: target, endpointAddr: endpointAddr, transport: transport, http2: req.ProtoMajor == 2}
		client := p.client(key, tlsConfig)
		req = req.WithContext(ctx)
		return client.Do(req)
	}
}

func hostOnly(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
