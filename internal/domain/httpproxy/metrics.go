package httpproxy

import (
	"net/http"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/telemetry"
)

// Handle wraps handle with request counting, duration recording, and a
// per-request trace span, applied around the whole pipeline instead of at
// the transport layer since a bind's pipeline is shared across every
// connection it accepts.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request, tcp TCPConnectionInfo, tls *TLSConnectionInfo) {
	ctx, span := telemetry.StartRequestSpan(r.Context(), p.BindKey)
	defer span.End()
	r = r.WithContext(ctx)

	if p.Metrics == nil {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		p.handle(rec, r, tcp, tls)
		telemetry.SetSpanOutcome(span, r.URL.Path, rec.status)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	p.handle(rec, r, tcp, tls)

	p.Metrics.RequestDuration.WithLabelValues(p.BindKey).Observe(time.Since(start).Seconds())
	p.Metrics.RequestsTotal.WithLabelValues(p.BindKey, statusToLabel(rec.status)).Inc()
	telemetry.SetSpanOutcome(span, r.URL.Path, rec.status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter, required for SSE (MCP,
// LLM streaming backends) to work through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
