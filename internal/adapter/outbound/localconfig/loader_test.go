package localconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const baseDoc = `
binds:
  - key: b1
    address: "0.0.0.0:8080"
    listeners:
      - key: l1
        protocol: http
        routes:
          - key: r1
            matches:
              - path_kind: prefix
                path: /
            backends:
              - weight: 1
                backend_ref: svc1
backends:
  - key: svc1
    kind: service
    service_hostname: svc1.default.svc
    service_port: 80
policies:
  - name: p1
    target: route
    target_ref: r1
    kind: local_rate_limit
    max_tokens: 100
`

func TestLoadInsertsBindListenerRouteBackendPolicy(t *testing.T) {
	path := writeTemp(t, baseDoc)
	st := store.New()
	l := NewLoader(path, st)

	if err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	binds := st.All()
	if len(binds) != 1 || binds[0].Key != "b1" {
		t.Fatalf("expected bind b1, got %+v", binds)
	}
	listener, ok := binds[0].Listeners["l1"]
	if !ok || listener.Protocol != store.ProtocolHTTP {
		t.Fatalf("expected listener l1 as http, got %+v", listener)
	}
	if len(listener.Routes.Routes) != 1 || listener.Routes.Routes[0].Key != "r1" {
		t.Fatalf("expected route r1, got %+v", listener.Routes)
	}
	if _, ok := st.Backend("svc1"); !ok {
		t.Fatal("expected backend svc1 to be inserted")
	}
	rp := st.RoutePolicies("r1", "", "")
	if rp.LocalRateLimit == nil || rp.LocalRateLimit.MaxTokens != 100 {
		t.Fatalf("expected policy p1 attached to route r1, got %+v", rp)
	}
}

func TestLoadResyncRemovesDroppedBind(t *testing.T) {
	path := writeTemp(t, baseDoc)
	st := store.New()
	l := NewLoader(path, st)
	if err := l.Load(); err != nil {
		t.Fatalf("first load: %v", err)
	}

	if err := os.WriteFile(path, []byte("binds: []\nbackends: []\npolicies: []\n"), 0o600); err != nil {
		t.Fatalf("rewrite temp config: %v", err)
	}
	if err := l.Load(); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if len(st.All()) != 0 {
		t.Fatalf("expected bind b1 to be removed after resync, got %+v", st.All())
	}
	if _, ok := st.Backend("svc1"); ok {
		t.Fatal("expected backend svc1 to be removed after resync")
	}
}

func TestLoadResyncNeverRemovesBackendItDidNotInsert(t *testing.T) {
	path := writeTemp(t, baseDoc)
	st := store.New()
	st.InsertBackend(&store.Backend{Name: "externally-managed", Kind: store.BackendOpaque})

	l := NewLoader(path, st)
	if err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.WriteFile(path, []byte("binds: []\nbackends: []\npolicies: []\n"), 0o600); err != nil {
		t.Fatalf("rewrite temp config: %v", err)
	}
	if err := l.Load(); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if _, ok := st.Backend("externally-managed"); !ok {
		t.Fatal("expected a backend this loader never inserted to survive resync")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeTemp(t, "binds: [this is not valid")
	st := store.New()
	l := NewLoader(path, st)
	if err := l.Load(); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	st := store.New()
	l := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), st)
	if err := l.Load(); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
