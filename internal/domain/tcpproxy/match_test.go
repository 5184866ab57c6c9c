package tcpproxy

import (
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

func TestMatchRouteEmptyHostnamesMatchesAny(t *testing.T) {
	routes := []*store.TCPRoute{{Key: "catch-all"}}
	got := MatchRoute(routes, "anything.example.com")
	if got == nil || got.Key != "catch-all" {
		t.Fatalf("expected catch-all route to match, got %+v", got)
	}
}

func TestMatchRouteExactAndWildcard(t *testing.T) {
	routes := []*store.TCPRoute{
		{Key: "exact", Hostnames: []string{"api.example.com"}},
		{Key: "wild", Hostnames: []string{"*.example.com"}},
	}
	if got := MatchRoute(routes, "api.example.com"); got == nil || got.Key != "exact" {
		t.Fatalf("expected exact match first, got %+v", got)
	}
	if got := MatchRoute(routes, "other.example.com"); got == nil || got.Key != "wild" {
		t.Fatalf("expected wildcard match, got %+v", got)
	}
	if got := MatchRoute(routes, "nomatch.org"); got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestChooseBackendNoRefs(t *testing.T) {
	_, err := ChooseBackend(nil)
	if err != ErrNoValidBackends {
		t.Fatalf("expected ErrNoValidBackends, got %v", err)
	}
}

func TestChooseBackendSingleRef(t *testing.T) {
	refs := []store.RouteBackendReference{{BackendRef: "only", Weight: 1}}
	got, err := ChooseBackend(refs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BackendRef != "only" {
		t.Fatalf("expected only ref chosen, got %+v", got)
	}
}
