package hbonepool

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
)

// ErrIdentityMismatch is returned when none of a peer's SPIFFE URI SANs
// match any identity the caller required.
var ErrIdentityMismatch = fmt.Errorf("hbonepool: peer identity does not match any destination identity")

// verifyPeerIdentity checks the leaf certificate's SPIFFE URI SANs against
// the acceptable identity set. An empty acceptable set means no
// verification is performed (used in tests / plaintext dev mode); callers
// terminating real mTLS should always supply at least one identity.
func verifyPeerIdentity(cert *x509.Certificate, acceptable []string) error {
	if len(acceptable) == 0 {
		return nil
	}
	for _, uri := range cert.URIs {
		if matchesAny(uri, acceptable) {
			return nil
		}
	}
	return ErrIdentityMismatch
}

func matchesAny(candidate *url.URL, acceptable []string) bool {
	s := candidate.String()
	for _, id := range acceptable {
		if s == id {
			return true
		}
	}
	return false
}

// peerVerifier builds a tls.Config.VerifyPeerCertificate callback bound to
// the given acceptable identity set, for use on a per-dial basis since the
// acceptable set varies per Key.
func peerVerifier(acceptable []string) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("hbonepool: no peer certificate presented")
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("hbonepool: parse peer certificate: %w", err)
		}
		return verifyPeerIdentity(leaf, acceptable)
	}
}

// PeerVerifier exposes peerVerifier for callers outside the pool that need
// the same SPIFFE URI SAN check against a raw certificate chain -- the bind
// runtime's HBONE server termination verifies inbound workload identities
// with it instead of duplicating the SAN-matching logic.
func PeerVerifier(acceptable []string) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return peerVerifier(acceptable)
}

// clientTLSConfig builds the per-dial TLS client config. Certificate
// material (the workload's own cert+key from the CA client) is supplied by
// the caller; this only wires the verification callback and disables Go's
// default verification since SPIFFE SAN matching replaces it.
func clientTLSConfig(base *tls.Config, acceptable []string) *tls.Config {
	cfg := base.Clone()
	cfg.InsecureSkipVerify = true
	cfg.VerifyPeerCertificate = peerVerifier(acceptable)
	cfg.NextProtos = []string{"h2"}
	return cfg
}
