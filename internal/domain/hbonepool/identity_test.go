package hbonepool

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/url"
	"testing"
	"time"
)

func selfSignedCertWithURISAN(t *testing.T, uri string) *x509.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		URIs:         []*url.URL{u},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestVerifyPeerIdentityMatch(t *testing.T) {
	cert := selfSignedCertWithURISAN(t, "spiffe://cluster.local/ns/default/sa/worker")
	err := verifyPeerIdentity(cert, []string{"spiffe://cluster.local/ns/default/sa/worker"})
	if err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestVerifyPeerIdentityMismatch(t *testing.T) {
	cert := selfSignedCertWithURISAN(t, "spiffe://cluster.local/ns/default/sa/worker")
	err := verifyPeerIdentity(cert, []string{"spiffe://cluster.local/ns/other/sa/other"})
	if err != ErrIdentityMismatch {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
}

func TestVerifyPeerIdentityEmptyAcceptableSkipsCheck(t *testing.T) {
	cert := selfSignedCertWithURISAN(t, "spiffe://cluster.local/ns/default/sa/worker")
	if err := verifyPeerIdentity(cert, nil); err != nil {
		t.Fatalf("expected no error with empty acceptable set, got %v", err)
	}
}

func TestKeyHashStableForEqualKeys(t *testing.T) {
	k1 := Key{DestinationAddr: "10.0.0.1:15008", DestinationIdentities: []string{"a", "b"}}
	k2 := Key{DestinationAddr: "10.0.0.1:15008", DestinationIdentities: []string{"a", "b"}}
	if keyHash(k1) != keyHash(k2) {
		t.Fatal("expected equal keys to hash identically")
	}
}

func TestKeyHashDiffersForDifferentAddr(t *testing.T) {
	k1 := Key{DestinationAddr: "10.0.0.1:15008"}
	k2 := Key{DestinationAddr: "10.0.0.2:15008"}
	if keyHash(k1) == keyHash(k2) {
		t.Fatal("expected different addresses to (almost certainly) hash differently")
	}
}
