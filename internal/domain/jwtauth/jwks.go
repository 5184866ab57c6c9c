package jwtauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSSource fetches and caches a JWKS document, refreshing it after ttl
// elapses or on an unknown kid (a key rotation may have happened).
type JWKSSource struct {
	URL    string
	Client *http.Client
	TTL    time.Duration

	mu       sync.RWMutex
	fetched  time.Time
	byKid    map[string]*rsa.PublicKey
}

// NewJWKSSource creates a source that fetches from url, defaulting the
// client and refresh interval.
func NewJWKSSource(url string) *JWKSSource {
	return &JWKSSource{URL: url, Client: http.DefaultClient, TTL: 10 * time.Minute}
}

// Key returns the RSA public key for keyID, refreshing the cached JWKS
// document if it is stale or the key is unknown.
func (s *JWKSSource) Key(ctx context.Context, keyID string) (any, error) {
	if key, ok := s.cached(keyID); ok {
		return key, nil
	}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok := s.cached(keyID)
	if !ok {
		return nil, fmt.Errorf("jwtauth: unknown key id %q", keyID)
	}
	return key, nil
}

func (s *JWKSSource) cached(keyID string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if time.Since(s.fetched) > s.TTL {
		return nil, false
	}
	key, ok := s.byKid[keyID]
	return key, ok
}

func (s *JWKSSource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return fmt.Errorf("jwtauth: build jwks request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("jwtauth: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwtauth: decode jwks: %w", err)
	}

	byKid := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		byKid[k.Kid] = pub
	}

	s.mu.Lock()
	s.byKid = byKid
	s.fetched = time.Now()
	s.mu.Unlock()
	return nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	eBuf := make([]byte, 8)
	copy(eBuf[8-len(eBytes):], eBytes)
	e := int(binary.BigEndian.Uint64(eBuf))

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
