package httpproxy

import (
	"io"
	"strings"
)

// LogBody wraps a response body, observing gRPC trailers for the
// RequestLog's status atomic while streaming data through unchanged (spec
// the response is still streaming). gRPC-over-HTTP2 responses carry their true status in an
// HTTP trailer (`grpc-status`) rather than the HTTP status line, so a
// gateway that wants to log the application-level outcome has to watch the
// body for it rather than the status code alone.
type LogBody struct {
	io.ReadCloser
	trailers func() map[string][]string
	log      *RequestLog
	observed bool
}

// NewLogBody wraps body; trailers returns the response's HTTP trailers
// (only populated once the body has been fully read, per net/http's
// trailer contract).
func NewLogBody(body io.ReadCloser, trailers func() map[string][]string, log *RequestLog) *LogBody {
	return &LogBody{ReadCloser: body, trailers: trailers, log: log}
}

// Read delegates to the wrapped body and, once io.EOF is reached, observes
// the gRPC trailer status exactly once.
func (b *LogBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == io.EOF {
		b.observeTrailer()
	}
	return n, err
}

// Close delegates to the wrapped body and observes the trailer if Read
// never reached EOF (the caller gave up early).
func (b *LogBody) Close() error {
	b.observeTrailer()
	return b.ReadCloser.Close()
}

func (b *LogBody) observeTrailer() {
	if b.observed || b.trailers == nil || b.log == nil {
		return
	}
	b.observed = true
	for name, values := range b.trailers() {
		if strings.EqualFold(name, "grpc-status") && len(values) > 0 {
			b.log.SetGRPCStatus(values[0])
			return
		}
	}
}

