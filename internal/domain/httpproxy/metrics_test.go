package httpproxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
	"github.com/Sentinel-Gate/Sentinelgate/internal/telemetry"
	dto "github.com/prometheus/client_model/go"
)

func TestHandleWithNilMetricsDoesNotPanic(t *testing.T) {
	p := &Pipeline{Store: store.New(), BindKey: "b1"}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec := httptest.NewRecorder()
	p.Handle(rec, req, TCPConnectionInfo{}, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a bind with no listeners, got %d", rec.Code)
	}
}

func TestHandleRecordsRequestMetrics(t *testing.T) {
	metrics := telemetry.NewMetrics()
	p := &Pipeline{Store: store.New(), BindKey: "b1", Metrics: metrics.HTTPProxy}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec := httptest.NewRecorder()
	p.Handle(rec, req, TCPConnectionInfo{}, nil)

	var m dto.Metric
	if err := metrics.HTTPProxy.RequestsTotal.WithLabelValues("b1", "error").Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Counter.GetValue() != 1 {
		t.Errorf("expected 1 recorded error request, got %f", m.Counter.GetValue())
	}

	var d dto.Metric
	if err := metrics.HTTPProxy.RequestDuration.WithLabelValues("b1").Write(&d); err != nil {
		t.Fatal(err)
	}
	if d.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 duration observation, got %d", d.Histogram.GetSampleCount())
	}
}
