package bindrt

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/drain"
)

func TestOnceListenerYieldsConnExactlyOnce(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	ln := &onceListener{conn: c1, closed: make(chan struct{})}

	got, err := ln.Accept()
	if err != nil || got != c1 {
		t.Fatalf("expected first Accept to return the wrapped conn, got %v, %v", got, err)
	}

	done := make(chan struct{})
	go func() {
		_, err := ln.Accept()
		if err != io.EOF {
			t.Errorf("expected io.EOF after Close, got %v", err)
		}
		close(done)
	}()

	ln.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Accept did not unblock after Close")
	}
}

func TestWaitWithWatchNilWatchJustWaitsForDone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	called := false
	waitWithWatch(nil, done, func() { called = true }, func() { called = true })
	if called {
		t.Fatal("graceful/force callbacks should not fire when watch is nil")
	}
}

func TestWaitWithWatchGracefulFiresOnDrainStart(t *testing.T) {
	d := drain.New()
	watch, release, ok := d.NewUpgrader().Upgrade()
	if !ok {
		t.Fatal("expected upgrade to succeed")
	}
	defer release()

	done := make(chan struct{})
	gracefulCalled := make(chan struct{})
	go func() {
		waitWithWatch(watch, done, func() { close(gracefulCalled) }, func() {})
	}()

	d.StartDrain(drain.ModeGraceful)
	select {
	case <-gracefulCalled:
	case <-time.After(time.Second):
		t.Fatal("graceful callback did not fire after drain start")
	}
	close(done)
}
