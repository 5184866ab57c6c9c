package telemetry

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsRegistersEveryComponent(t *testing.T) {
	m := NewMetrics()

	m.Bind.ConnectionsAccepted.WithLabelValues("b1", "tcp").Inc()
	m.HTTPProxy.RequestsTotal.WithLabelValues("b1", "ok").Inc()
	m.HBONE.Dials.WithLabelValues("hit").Inc()
	m.Discovery.CacheHits.Inc()
	m.Drain.DrainsStarted.Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family after recording across every component")
	}
}

func TestBindMetricsConnectionsAcceptedCountsByTermination(t *testing.T) {
	m := NewMetrics()
	m.Bind.ConnectionsAccepted.WithLabelValues("b1", "hbone").Inc()
	m.Bind.ConnectionsAccepted.WithLabelValues("b1", "hbone").Inc()
	m.Bind.ConnectionsAccepted.WithLabelValues("b1", "tcp").Inc()

	var hbone dto.Metric
	if err := m.Bind.ConnectionsAccepted.WithLabelValues("b1", "hbone").Write(&hbone); err != nil {
		t.Fatal(err)
	}
	if hbone.Counter.GetValue() != 2 {
		t.Errorf("expected 2 hbone connections, got %f", hbone.Counter.GetValue())
	}

	var tcp dto.Metric
	if err := m.Bind.ConnectionsAccepted.WithLabelValues("b1", "tcp").Write(&tcp); err != nil {
		t.Fatal(err)
	}
	if tcp.Counter.GetValue() != 1 {
		t.Errorf("expected 1 tcp connection, got %f", tcp.Counter.GetValue())
	}
}

func TestBindMetricsActiveGaugeIncDec(t *testing.T) {
	m := NewMetrics()
	m.Bind.ConnectionsActive.WithLabelValues("b1").Inc()
	m.Bind.ConnectionsActive.WithLabelValues("b1").Inc()
	m.Bind.ConnectionsActive.WithLabelValues("b1").Dec()

	var g dto.Metric
	if err := m.Bind.ConnectionsActive.WithLabelValues("b1").Write(&g); err != nil {
		t.Fatal(err)
	}
	if g.Gauge.GetValue() != 1 {
		t.Errorf("expected active gauge 1, got %f", g.Gauge.GetValue())
	}
}
