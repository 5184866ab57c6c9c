package httpproxy

import (
	"errors"
	"net"
	"net/http/httptest"
	"syscall"
	"testing"
)

func TestNewErrorMapsStatus(t *testing.T) {
	err := newError(KindRouteNotFound, "no route", nil)
	if err.Status != 404 {
		t.Fatalf("expected 404, got %d", err.Status)
	}
	if err.Error() != "no route" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindUpstreamCallFailed, "dial failed", cause)
	if errors.Unwrap(err) != cause {
		t.Fatalf("expected Unwrap to return cause")
	}
	if err.Error() != "dial failed: boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestIsGracefulDisconnect(t *testing.T) {
	cases := []error{net.ErrClosed, syscall.EPIPE, syscall.ECONNRESET}
	for _, c := range cases {
		if !isGracefulDisconnect(c) {
			t.Errorf("expected %v to be graceful", c)
		}
	}
	if isGracefulDisconnect(errors.New("some other error")) {
		t.Fatal("expected non-graceful error to report false")
	}
}

func TestWriteErrorProducesJSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, newError(KindRateLimited, `rate "limited"`, nil))
	if rec.Code != 429 {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	body := rec.Body.String()
	if body == "" {
		t.Fatal("expected non-empty body")
	}
}
