package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func encodeJWK(t *testing.T, pub *rsa.PublicKey, kid string) jwk {
	t.Helper()
	eBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(eBuf, uint64(pub.E))
	for len(eBuf) > 1 && eBuf[0] == 0 {
		eBuf = eBuf[1:]
	}
	return jwk{
		Kid: kid,
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(eBuf),
	}
}

func TestJWKSSourceFetchesAndCachesKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		set := jwkSet{Keys: []jwk{encodeJWK(t, &priv.PublicKey, "key-1")}}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"keys":[{"kid":"%s","kty":"%s","n":"%s","e":"%s"}]}`,
			set.Keys[0].Kid, set.Keys[0].Kty, set.Keys[0].N, set.Keys[0].E)
	}))
	defer srv.Close()

	source := NewJWKSSource(srv.URL)
	key, err := source.Key(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", key)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Fatal("recovered modulus does not match original key")
	}

	if _, err := source.Key(context.Background(), "key-1"); err != nil {
		t.Fatalf("unexpected error on cached lookup: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected cached lookup to avoid refetch, got %d fetches", hits)
	}
}

func TestJWKSSourceRefetchesOnUnknownKid(t *testing.T) {
	priv1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	priv2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	currentKid := "key-1"
	currentKey := &priv1.PublicKey
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := encodeJWK(t, currentKey, currentKid)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"keys":[{"kid":"%s","kty":"%s","n":"%s","e":"%s"}]}`, k.Kid, k.Kty, k.N, k.E)
	}))
	defer srv.Close()

	source := NewJWKSSource(srv.URL)
	if _, err := source.Key(context.Background(), "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	currentKid = "key-2"
	currentKey = &priv2.PublicKey

	key, err := source.Key(context.Background(), "key-2")
	if err != nil {
		t.Fatalf("expected rotation to be picked up, got error: %v", err)
	}
	pub := key.(*rsa.PublicKey)
	if pub.N.Cmp(priv2.PublicKey.N) != 0 {
		t.Fatal("expected rotated key to be returned")
	}
}
