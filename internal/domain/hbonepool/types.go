// Package hbonepool multiplexes mTLS-authenticated HTTP/2 CONNECT tunnels
// to peer workloads on their HBONE port, pooling connections so repeated
// calls to the same destination reuse an existing TLS+H2 session instead of
// paying a fresh handshake per stream.
package hbonepool

import "time"

// Key identifies a pool bucket: the set of acceptable peer identities and
// the destination address to dial. Two requests with the same Key may
// share a connection (subject to the per-connection stream cap).
type Key struct {
	// DestinationIdentities are the SPIFFE identities the peer's cert SAN
	// set is checked against; any one match is acceptable.
	DestinationIdentities []string
	DestinationAddr        string
}

// hashBytes renders a Key into the xxhash-friendly byte form used to bucket
// pool entries; order of DestinationIdentities is treated as significant
// since it comes from config and is expected to be stable call to call.
func (k Key) hashBytes() []byte {
	size := len(k.DestinationAddr) + 1
	for _, id := range k.DestinationIdentities {
		size += len(id) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, k.DestinationAddr...)
	buf = append(buf, 0)
	for _, id := range k.DestinationIdentities {
		buf = append(buf, id...)
		buf = append(buf, 0)
	}
	return buf
}

// Params tunes the H2 connections this pool opens. All are tunable;
// MaxSendBufferSize defaults to WindowSize when zero.
type Params struct {
	WindowSize           uint32
	ConnectionWindowSize uint32
	FrameSize            uint32
	MaxStreamsPerConn    int
	UnusedReleaseTimeout time.Duration
	MaxSendBufferSize    uint32
}

// DefaultParams mirrors the HTTP2_* / POOL_* environment variable defaults
// this gateway ships with.
func DefaultParams() Params {
	return Params{
		WindowSize:           65535,
		ConnectionWindowSize: 65535 * 4,
		FrameSize:            16384,
		MaxStreamsPerConn:    100,
		UnusedReleaseTimeout: 5 * time.Minute,
		MaxSendBufferSize:    65535,
	}
}
