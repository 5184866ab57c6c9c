package httpproxy

import (
	"io"
	"strings"
	"testing"
)

func TestLogBodyObservesGRPCStatusOnEOF(t *testing.T) {
	log := NewRequestLog(TCPConnectionInfo{}, nil)
	trailers := map[string][]string{"Grpc-Status": {"0"}}
	body := NewLogBody(io.NopCloser(strings.NewReader("hi")), func() map[string][]string { return trailers }, log)

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("expected body passed through unchanged, got %q", data)
	}
	if got := log.GRPCStatus(); got != "0" {
		t.Fatalf("expected grpc-status 0 observed on EOF, got %q", got)
	}
}

func TestLogBodyObservesTrailerOnCloseIfNeverRead(t *testing.T) {
	log := NewRequestLog(TCPConnectionInfo{}, nil)
	trailers := map[string][]string{"grpc-status": {"7"}}
	body := NewLogBody(io.NopCloser(strings.NewReader("unread")), func() map[string][]string { return trailers }, log)

	if err := body.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := log.GRPCStatus(); got != "7" {
		t.Fatalf("expected grpc-status observed on early close, got %q", got)
	}
}

func TestLogBodyObservesTrailerAtMostOnce(t *testing.T) {
	log := NewRequestLog(TCPConnectionInfo{}, nil)
	calls := 0
	trailers := func() map[string][]string {
		calls++
		return map[string][]string{"grpc-status": {"0"}}
	}
	body := NewLogBody(io.NopCloser(strings.NewReader("")), trailers, log)

	_, _ = io.ReadAll(body)
	_ = body.Close()

	if calls != 1 {
		t.Fatalf("expected trailers to be consulted exactly once, got %d calls", calls)
	}
}

func TestLogBodyWithNoTrailersFuncLeavesStatusUnset(t *testing.T) {
	log := NewRequestLog(TCPConnectionInfo{}, nil)
	body := NewLogBody(io.NopCloser(strings.NewReader("x")), nil, log)

	_, _ = io.ReadAll(body)
	if err := body.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := log.GRPCStatus(); got != "" {
		t.Fatalf("expected no grpc-status observed, got %q", got)
	}
}

func TestLogBodyIgnoresTrailersWithoutGRPCStatus(t *testing.T) {
	log := NewRequestLog(TCPConnectionInfo{}, nil)
	trailers := map[string][]string{"x-other": {"value"}}
	body := NewLogBody(io.NopCloser(strings.NewReader("y")), func() map[string][]string { return trailers }, log)

	_, _ = io.ReadAll(body)
	if got := log.GRPCStatus(); got != "" {
		t.Fatalf("expected no grpc-status observed for unrelated trailers, got %q", got)
	}
}
