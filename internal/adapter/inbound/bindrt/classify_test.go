package bindrt

import (
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

func TestClassifyPrefersHBONEOverEverything(t *testing.T) {
	listeners := map[string]*store.Listener{
		"a": {Protocol: store.ProtocolHTTPS},
		"b": {Protocol: store.ProtocolHBONE},
	}
	if got := classify(listeners); got != terminationHBONE {
		t.Fatalf("expected terminationHBONE, got %v", got)
	}
}

func TestClassifyHTTPSBeatsOtherProtocols(t *testing.T) {
	listeners := map[string]*store.Listener{
		"a": {Protocol: store.ProtocolTCP},
		"b": {Protocol: store.ProtocolHTTPS},
	}
	if got := classify(listeners); got != terminationTLSThenHTTP {
		t.Fatalf("expected terminationTLSThenHTTP, got %v", got)
	}
}

func TestClassifyTLSBeatsTCP(t *testing.T) {
	listeners := map[string]*store.Listener{
		"a": {Protocol: store.ProtocolTCP},
		"b": {Protocol: store.ProtocolTLS},
	}
	if got := classify(listeners); got != terminationTLSThenTCP {
		t.Fatalf("expected terminationTLSThenTCP, got %v", got)
	}
}

func TestClassifyTCPOnly(t *testing.T) {
	listeners := map[string]*store.Listener{"a": {Protocol: store.ProtocolTCP}}
	if got := classify(listeners); got != terminationTCP {
		t.Fatalf("expected terminationTCP, got %v", got)
	}
}

func TestClassifyDefaultsToCleartextHTTP(t *testing.T) {
	listeners := map[string]*store.Listener{"a": {Protocol: store.ProtocolHTTP}}
	if got := classify(listeners); got != terminationHTTPCleartext {
		t.Fatalf("expected terminationHTTPCleartext, got %v", got)
	}
}

func TestClassifyEmptyListenersDefaultsToCleartextHTTP(t *testing.T) {
	if got := classify(nil); got != terminationHTTPCleartext {
		t.Fatalf("expected terminationHTTPCleartext for no listeners, got %v", got)
	}
}
