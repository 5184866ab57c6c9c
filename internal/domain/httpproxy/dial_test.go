package httpproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientPoolReusesClientForSameKey(t *testing.T) {
	p := NewClientPool(nil)
	key := poolKey{target: "b1", endpointAddr: "10.0.0.1:80", transport: TransportPlaintext}

	c1 := p.client(key, nil)
	c2 := p.client(key, nil)
	if c1 != c2 {
		t.Fatal("expected the same *http.Client instance for the same pool key")
	}
}

func TestClientPoolGivesDistinctClientsForDistinctKeys(t *testing.T) {
	p := NewClientPool(nil)
	c1 := p.client(poolKey{target: "b1", endpointAddr: "10.0.0.1:80", transport: TransportPlaintext}, nil)
	c2 := p.client(poolKey{target: "b1", endpointAddr: "10.0.0.2:80", transport: TransportPlaintext}, nil)
	if c1 == c2 {
		t.Fatal("expected distinct clients for distinct endpoint addresses")
	}
}

func TestDoHBONEWithoutPoolConfiguredErrors(t *testing.T) {
	p := NewClientPool(nil)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

	_, err := p.Do(context.Background(), "b1", "10.0.0.1:15008", TransportHBONE, nil, nil, req)
	if err == nil {
		t.Fatal("expected an error when no hbone pool is configured")
	}
}

func TestDoPlaintextDispatchesToEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	p := NewClientPool(nil)
	req := httptest.NewRequest(http.MethodGet, srv.URL, nil)
	req.URL.Scheme = "http"
	req.URL.Host = srv.Listener.Addr().String()

	resp, err := p.Do(context.Background(), "b1", srv.Listener.Addr().String(), TransportPlaintext, nil, nil, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", resp.StatusCode)
	}
}

func TestHostOnlyStripsPort(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1:8080": "10.0.0.1",
		"example.com:443": "example.com",
		"no-port":         "no-port",
	}
	for in, want := range cases {
		if got := hostOnly(in); got != want {
			t.Errorf("hostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}
