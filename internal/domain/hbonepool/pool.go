package hbonepool

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/http2"
)

// Dialer opens the raw TCP connection a pool entry will upgrade to TLS+H2.
// Extracted as a field so tests can substitute an in-memory pipe.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

func defaultDialer(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// entry is one pooled H2 connection: the underlying ClientConn plus the
// bookkeeping the pool needs to decide whether it can take another stream
// and when to release it for being unused.
type entry struct {
	key         Key
	cc          *http2.ClientConn
	conn        net.Conn
	streamCount atomic.Int64
	lastIdle    atomic.Int64 // unix nanos of the moment streamCount last hit zero
	dead        atomic.Bool
}

func (e *entry) canTakeStream(max int) bool {
	if e.dead.Load() || !e.cc.CanTakeNewRequest() {
		return false
	}
	return e.streamCount.Load() < int64(max)
}

// Pool multiplexes mTLS+H2 CONNECT tunnels to peer workloads, keyed by
// destination address and acceptable peer identity set.
type Pool struct {
	mu      sync.Mutex
	buckets map[uint64][]*entry

	params  Params
	tlsBase *tls.Config
	dial    Dialer

	closeOnce sync.Once
	stopReap  chan struct{}
}

// New creates a Pool. tlsBase carries the workload's own client certificate
// (issued by the CA client, an external collaborator); New
// clones it per-dial to attach the destination-specific identity verifier.
func New(params Params, tlsBase *tls.Config) *Pool {
	if params.MaxSendBufferSize == 0 {
		params.MaxSendBufferSize = params.WindowSize
	}
	p := &Pool{
		buckets:  map[uint64][]*entry{},
		params:   params,
		tlsBase:  tlsBase,
		dial:     defaultDialer,
		stopReap: make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Close stops the pool's background reaper and closes every pooled
// connection, aborting in-flight streams — the HBONE pool's analogue of a
// force-shutdown watch.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.stopReap)
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, bucket := range p.buckets {
			for _, e := range bucket {
				e.dead.Store(true)
				_ = e.conn.Close()
			}
		}
		p.buckets = map[uint64][]*entry{}
	})
}

func (p *Pool) reapLoop() {
	interval := p.params.UnusedReleaseTimeout
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopReap:
			return
		case <-ticker.C:
			p.reapUnused(interval)
		}
	}
}

func (p *Pool) reapUnused(timeout time.Duration) {
	now := time.Now().UnixNano()
	p.mu.Lock()
	defer p.mu.Unlock()
	for hash, bucket := range p.buckets {
		kept := bucket[:0:0]
		for _, e := range bucket {
			idleSince := e.lastIdle.Load()
			unused := e.streamCount.Load() == 0 && idleSince != 0 && time.Duration(now-idleSince) >= timeout
			if unused || e.dead.Load() || !e.cc.CanTakeNewRequest() {
				e.dead.Store(true)
				_ = e.conn.Close()
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.buckets, hash)
		} else {
			p.buckets[hash] = kept
		}
	}
}

func keyHash(k Key) uint64 {
	return xxhash.Sum64(k.hashBytes())
}

// pooledBody decrements the owning entry's stream count exactly once when
// closed — a RAII drop-counter, expressed as an
// io.ReadCloser wrapper since Go has no destructors.
type pooledBody struct {
	io.ReadCloser
	e    *entry
	once sync.Once
}

func (b *pooledBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		if b.e.streamCount.Add(-1) == 0 {
			b.e.lastIdle.Store(time.Now().UnixNano())
		}
	})
	return err
}

// SendRequestPooled looks up a connection matching key; if one exists,
// isn't dead, and has capacity for another stream, it is reused, otherwise
// a new TLS+H2 connection is dialed. The returned response's body must be
// closed by the caller to release the stream-count reference.
func (p *Pool) SendRequestPooled(ctx context.Context, key Key, req *http.Request) (*http.Response, error) {
	hash := keyHash(key)

	p.mu.Lock()
	var chosen *entry
	for _, e := range p.buckets[hash] {
		if e.key.DestinationAddr == key.DestinationAddr && e.canTakeStream(p.params.MaxStreamsPerConn) {
			chosen = e
			break
		}
	}
	p.mu.Unlock()

	if chosen == nil {
		var err error
		chosen, err = p.dialNew(ctx, key)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.buckets[hash] = append(p.buckets[hash], chosen)
		p.mu.Unlock()
	}

	chosen.streamCount.Add(1)
	resp, err := chosen.cc.RoundTrip(req)
	if err != nil {
		chosen.streamCount.Add(-1)
		return nil, fmt.Errorf("hbonepool: round trip: %w", err)
	}
	resp.Body = &pooledBody{ReadCloser: resp.Body, e: chosen}
	return resp, nil
}

func (p *Pool) dialNew(ctx context.Context, key Key) (*entry, error) {
	raw, err := p.dial(ctx, key.DestinationAddr)
	if err != nil {
		return nil, fmt.Errorf("hbonepool: dial %s: %w", key.DestinationAddr, err)
	}

	tlsCfg := clientTLSConfig(p.tlsBase, key.DestinationIdentities)
	tlsConn := tls.Client(raw, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("hbonepool: tls handshake to %s: %w", key.DestinationAddr, err)
	}

	transport := &http2.Transport{
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     15 * time.Second,
	}
	cc, err := transport.NewClientConn(tlsConn)
	if err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("hbonepool: establish h2 connection to %s: %w", key.DestinationAddr, err)
	}

	e := &entry{key: key, cc: cc, conn: tlsConn}
	e.lastIdle.Store(time.Now().UnixNano())
	return e, nil
}
