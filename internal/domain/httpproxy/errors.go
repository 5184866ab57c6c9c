package httpproxy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind is the HTTP proxy pipeline's error taxonomy, each variant
// carrying an exact status-code mapping.
type Kind string

const (
	KindRouteNotFound        Kind = "route_not_found"
	KindNoValidBackends      Kind = "no_valid_backends"
	KindBackendDoesNotExist  Kind = "backend_does_not_exist"
	KindNoHealthyEndpoints   Kind = "no_healthy_endpoints"
	KindDNSResolution        Kind = "dns_resolution"
	KindProcessing           Kind = "processing"
	KindUpstreamCallFailed   Kind = "upstream_call_failed"
	KindRequestTimeout       Kind = "request_timeout"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindAuthorizationFailed  Kind = "authorization_failed"
	KindRateLimited          Kind = "rate_limited"
	KindBackendAuthFailed    Kind = "backend_authentication_failed"
	KindInvalidFilterConfig  Kind = "invalid_filter_configuration"
	KindInvalidURI           Kind = "invalid_uri"
)

// Error is a pipeline error carrying its taxonomy kind, an exact status
// mapping, and the wrapped cause for logging.
type Error struct {
	Kind   Kind
	Status int
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Cause }

var kindStatus = map[Kind]int{
	KindRouteNotFound:        http.StatusNotFound,
	KindNoValidBackends:      http.StatusBadGateway,
	KindBackendDoesNotExist:  http.StatusBadGateway,
	KindNoHealthyEndpoints:   http.StatusServiceUnavailable,
	KindDNSResolution:        http.StatusBadGateway,
	KindProcessing:           http.StatusInternalServerError,
	KindUpstreamCallFailed:   http.StatusBadGateway,
	KindRequestTimeout:       http.StatusGatewayTimeout,
	KindAuthenticationFailed: http.StatusUnauthorized,
	KindAuthorizationFailed:  http.StatusForbidden,
	KindRateLimited:          http.StatusTooManyRequests,
	KindBackendAuthFailed:    http.StatusInternalServerError,
	KindInvalidFilterConfig:  http.StatusInternalServerError,
	KindInvalidURI:           http.StatusInternalServerError,
}

// newError builds a pipeline Error for kind, looking up its status mapping.
func newError(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Status: kindStatus[kind], Reason: reason, Cause: cause}
}

// isGracefulDisconnect reports whether err represents a peer-initiated
// close that should be logged informationally, not as an error (
// ClientDisconnected / BackendDisconnected are informational).
func isGracefulDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// writeError renders a pipeline Error as a JSON body, mirroring the
// teacher's writeJSONError shape in internal/adapter/inbound/httpgw.
func writeError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	body := `{"error":"` + string(err.Kind) + `","reason":"` + jsonEscape(err.Reason) + `"}`
	_, _ = w.Write([]byte(body))
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch r {
		case '"', '\\':
			out = append(out, '\\', byte(r))
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, string(r)...)
		}
	}
	return string(out)
}
