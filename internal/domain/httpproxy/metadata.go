package httpproxy

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/llm"
)

// TCPConnectionInfo carries the accepted connection's transport-level
// identity, attached to a RequestLog at pipeline step 1.
type TCPConnectionInfo struct {
	LocalAddr  string
	RemoteAddr string
}

// TLSConnectionInfo carries the negotiated TLS session's identity, nil for
// plaintext listeners.
type TLSConnectionInfo struct {
	ALPNProtocol     string
	PeerIdentities   []string
	HandshakeVersion uint16
}

// RequestLog is the per-request observability record threaded through the
// pipeline: start time, connection metadata, and a slot for the LLM
// provider layer's token accounting (filled in only for AI backends).
type RequestLog struct {
	// RequestID correlates this request's log lines and is echoed in the
	// X-Request-Id response header; it is generated once per request, never taken from client
	// input, so a caller cannot forge another request's correlation id.
	RequestID string
	StartTime time.Time
	TCP       TCPConnectionInfo
	TLS       *TLSConnectionInfo

	// grpcStatus is the gRPC trailer status observed by LogBody, read by
	// callers that need to log the true application-level outcome of a
	// gRPC-over-HTTP2 backend call distinct from the HTTP status code.
	grpcStatus atomic.Value // string

	// llmResponse is the AsyncLog<LLMResponse> slot: set once by the LLM
	// provider layer when the response completes, read at log time.
	llmResponse atomic.Pointer[llm.ResponseLog]
}

// NewRequestLog starts a RequestLog at the current time with the given
// connection metadata.
func NewRequestLog(tcp TCPConnectionInfo, tls *TLSConnectionInfo) *RequestLog {
	return &RequestLog{RequestID: uuid.NewString(), StartTime: time.Now(), TCP: tcp, TLS: tls}
}

// SetGRPCStatus records the gRPC trailer status observed on the response
// body, overwriting any previous value (the last trailer wins).
func (rl *RequestLog) SetGRPCStatus(status string) {
	rl.grpcStatus.Store(status)
}

// GRPCStatus returns the observed gRPC trailer status, or "" if none was
// seen (a non-gRPC backend, or the stream closed before trailers arrived).
func (rl *RequestLog) GRPCStatus() string {
	v, _ := rl.grpcStatus.Load().(string)
	return v
}

// SetLLMResponse stores the completed LLM response log, making it visible
// to readers (e.g. a token-rate-limit charge step) once the AI backend
// response finishes.
func (rl *RequestLog) SetLLMResponse(log *llm.ResponseLog) {
	rl.llmResponse.Store(log)
}

// LLMResponse returns the stored LLM response log, or nil if the request
// was not an AI backend call or has not completed yet.
func (rl *RequestLog) LLMResponse() *llm.ResponseLog {
	return rl.llmResponse.Load()
}
