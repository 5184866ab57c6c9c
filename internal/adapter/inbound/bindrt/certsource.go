package bindrt

import "crypto/tls"

// CertResolver resolves a store.TLSConfig.CertRef to the certificate
// material the lazy TLS acceptor presents during the handshake. A
// certificate-management layer implements this behind a narrow interface;
// bindrt only consumes it and never owns cert issuance or storage itself.
type CertResolver interface {
	Resolve(certRef string) (*tls.Certificate, error)
}

// WorkloadIdentity supplies the mTLS material and accepted peer identity
// set for HBONE server termination: the gateway's own workload certificate
// and the SPIFFE identities permitted to open an HBONE tunnel to it.
type WorkloadIdentity interface {
	ServerCertificate() (*tls.Certificate, error)
	AcceptedPeerIdentities() []string
}
