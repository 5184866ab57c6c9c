package httpproxy

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReferencesRequestBody(t *testing.T) {
	if !referencesRequestBody([]string{"request.method == 'GET'", "request.body.contains('x')"}) {
		t.Fatal("expected true when an expression references request.body")
	}
	if referencesRequestBody([]string{"request.method == 'GET'"}) {
		t.Fatal("expected false when no expression references request.body")
	}
}

func TestBuildRequestContextWithoutBodyLeavesBodyUntouched(t *testing.T) {
	req := httptest.NewRequest("POST", "/widgets", strings.NewReader("original"))
	ctx, body, err := BuildRequestContext(req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.RequestMethod != "POST" || ctx.RequestBody != "" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
	if body != req.Body {
		t.Fatal("expected original body reader untouched")
	}
}

func TestBuildRequestContextBuffersBodyWhenNeeded(t *testing.T) {
	req := httptest.NewRequest("POST", "/widgets", strings.NewReader("payload"))
	ctx, body, err := BuildRequestContext(req, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.RequestBody != "payload" {
		t.Fatalf("expected buffered body in context, got %q", ctx.RequestBody)
	}
	buf := make([]byte, 7)
	n, _ := body.Read(buf)
	if string(buf[:n]) != "payload" {
		t.Fatalf("expected reconstructed body reader to still yield payload, got %q", buf[:n])
	}
}
