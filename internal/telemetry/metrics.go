// Package telemetry wires the gateway's Prometheus sub-registries and the
// local stdout trace/metric exporters. Each component (bind runtime, HTTP
// proxy pipeline, HBONE pool, discovery cache, drain) gets its own group of
// counters/histograms/gauges built with promauto against one shared
// registry, split per component instead of one flat struct, since this
// gateway has more than one thing worth counting independently.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinelgate"

// Metrics is the process-wide metrics registry plus every component's
// sub-registry of counters. One Metrics is created at startup; the Bind
// and HTTPProxy groups are recorded by the bind runtime and the HTTP proxy
// pipeline, while the HBONE, Discovery and Drain groups are registered but
// nothing increments them. Counter increments from concurrent goroutines
// are lock-free, same as the underlying client_golang counters.
type Metrics struct {
	Registry *prometheus.Registry

	Bind      *BindMetrics
	HTTPProxy *HTTPProxyMetrics
	HBONE     *HBONEMetrics
	Discovery *DiscoveryMetrics
	Drain     *DrainMetrics
}

// NewMetrics creates a fresh registry, registers the standard Go/process
// collectors on it, and builds every component's sub-registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		Registry:  reg,
		Bind:      newBindMetrics(reg),
		HTTPProxy: newHTTPProxyMetrics(reg),
		HBONE:     newHBONEMetrics(reg),
		Discovery: newDiscoveryMetrics(reg),
		Drain:     newDrainMetrics(reg),
	}
}

// BindMetrics counts connection lifecycle events in the accept loop and the
// termination path classify chooses for each bind (internal/adapter/inbound/bindrt).
type BindMetrics struct {
	ConnectionsAccepted *prometheus.CounterVec // labels: bind, termination
	ConnectionsActive   *prometheus.GaugeVec   // labels: bind
	TLSHandshakeFailure *prometheus.CounterVec // labels: bind
}

func newBindMetrics(reg prometheus.Registerer) *BindMetrics {
	return &BindMetrics{
		ConnectionsAccepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bind",
				Name:      "connections_accepted_total",
				Help:      "Total connections accepted per bind and termination path",
			},
			[]string{"bind", "termination"},
		),
		ConnectionsActive: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bind",
				Name:      "connections_active",
				Help:      "Connections currently being served per bind",
			},
			[]string{"bind"},
		),
		TLSHandshakeFailure: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bind",
				Name:      "tls_handshake_failures_total",
				Help:      "TLS handshake failures per bind",
			},
			[]string{"bind"},
		),
	}
}

// HTTPProxyMetrics counts requests flowing through the proxy request
// pipeline (internal/domain/httpproxy.Pipeline).
type HTTPProxyMetrics struct {
	RequestsTotal   *prometheus.CounterVec   // labels: bind, status
	RequestDuration *prometheus.HistogramVec // labels: bind
	PolicyDenials   *prometheus.CounterVec   // labels: bind, reason
}

func newHTTPProxyMetrics(reg prometheus.Registerer) *HTTPProxyMetrics {
	return &HTTPProxyMetrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "httpproxy",
				Name:      "requests_total",
				Help:      "Total proxied requests per bind and outcome",
			},
			[]string{"bind", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "httpproxy",
				Name:      "request_duration_seconds",
				Help:      "Request pipeline duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"bind"},
		),
		PolicyDenials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "httpproxy",
				Name:      "policy_denials_total",
				Help:      "Requests rejected by a policy step, by reason",
			},
			[]string{"bind", "reason"},
		),
	}
}

// HBONEMetrics instruments the outbound HBONE connection pool.
type HBONEMetrics struct {
	PoolConnections *prometheus.GaugeVec   // labels: destination
	Dials           *prometheus.CounterVec // labels: result (hit/miss/error)
	Evictions       prometheus.Counter
}

func newHBONEMetrics(reg prometheus.Registerer) *HBONEMetrics {
	return &HBONEMetrics{
		PoolConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "hbone_pool",
				Name:      "connections",
				Help:      "Pooled HBONE connections per destination",
			},
			[]string{"destination"},
		),
		Dials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hbone_pool",
				Name:      "dials_total",
				Help:      "HBONE pool dial attempts by result",
			},
			[]string{"result"},
		),
		Evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hbone_pool",
				Name:      "evictions_total",
				Help:      "Pooled connections evicted for being idle or unhealthy",
			},
		),
	}
}

// DiscoveryMetrics instruments the workload/service discovery store's
// endpoint-resolution cache.
type DiscoveryMetrics struct {
	CacheSize   prometheus.Gauge
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

func newDiscoveryMetrics(reg prometheus.Registerer) *DiscoveryMetrics {
	return &DiscoveryMetrics{
		CacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "cache_entries",
				Help:      "Entries currently held in the endpoint resolution cache",
			},
		),
		CacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "cache_hits_total",
				Help:      "Endpoint resolutions served from cache",
			},
		),
		CacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "cache_misses_total",
				Help:      "Endpoint resolutions that required a fresh lookup",
			},
		),
	}
}

// DrainMetrics instruments the process-level connection drain orchestrator.
type DrainMetrics struct {
	ActiveWatches prometheus.Gauge
	DrainsStarted prometheus.Counter
}

func newDrainMetrics(reg prometheus.Registerer) *DrainMetrics {
	return &DrainMetrics{
		ActiveWatches: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "drain",
				Name:      "active_watches",
				Help:      "Connections currently holding a strong drain reference",
			},
		),
		DrainsStarted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "drain",
				Name:      "drains_started_total",
				Help:      "Number of times StartDrain was called",
			},
		),
	}
}
