package hbonepool

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	"golang.org/x/net/http2"
)

func generateServerCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "hbone-test-server"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

func startH2Server(t *testing.T, handler http.HandlerFunc) net.Addr {
	t.Helper()
	cert := generateServerCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2"},
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	h2srv := &http2.Server{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go h2srv.ServeConn(conn, &http2.ServeConnOpts{Handler: handler})
		}
	}()
	return ln.Addr()
}

func TestSendRequestPooledReusesConnection(t *testing.T) {
	var served int
	addr := startH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		served++
		w.Write([]byte("ok"))
	})

	p := New(DefaultParams(), &tls.Config{})
	defer p.Close()

	key := Key{DestinationAddr: addr.String()}

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("https://%s/", addr.String()), nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		resp, err := p.SendRequestPooled(context.Background(), key, req)
		if err != nil {
			t.Fatalf("send request %d: %v", i, err)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		resp.Body.Close()
		if string(body) != "ok" {
			t.Fatalf("unexpected body: %q", body)
		}
	}

	p.mu.Lock()
	numConns := len(p.buckets[keyHash(key)])
	p.mu.Unlock()
	if numConns != 1 {
		t.Fatalf("expected a single pooled connection to be reused, got %d", numConns)
	}
}

func TestSendRequestPooledRejectsIdentityMismatch(t *testing.T) {
	addr := startH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	p := New(DefaultParams(), &tls.Config{})
	defer p.Close()

	key := Key{DestinationAddr: addr.String(), DestinationIdentities: []string{"spiffe://cluster.local/ns/default/sa/expected"}}
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("https://%s/", addr.String()), nil)

	_, err := p.SendRequestPooled(context.Background(), key, req)
	if err == nil {
		t.Fatal("expected identity mismatch error")
	}
}

func TestStreamCountDecrementsOnBodyClose(t *testing.T) {
	addr := startH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	p := New(DefaultParams(), &tls.Config{})
	defer p.Close()

	key := Key{DestinationAddr: addr.String()}
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("https://%s/", addr.String()), nil)
	resp, err := p.SendRequestPooled(context.Background(), key, req)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}

	p.mu.Lock()
	e := p.buckets[keyHash(key)][0]
	p.mu.Unlock()

	if e.streamCount.Load() != 1 {
		t.Fatalf("expected stream count 1 before close, got %d", e.streamCount.Load())
	}
	io.ReadAll(resp.Body)
	resp.Body.Close()
	if e.streamCount.Load() != 0 {
		t.Fatalf("expected stream count 0 after close, got %d", e.streamCount.Load())
	}
}
