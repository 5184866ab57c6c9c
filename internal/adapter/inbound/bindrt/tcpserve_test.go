package bindrt

import (
	"net"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/httpproxy"
)

func TestDialTargetPlaintext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start test listener: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	conn, err := dialTarget(httpproxy.DialTarget{Address: ln.Addr().String(), Transport: httpproxy.TransportPlaintext})
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	conn.Close()
	<-accepted
}
