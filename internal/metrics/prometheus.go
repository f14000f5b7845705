// Package metrics provides Prometheus metrics for monitoring a Cepa node.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds all Prometheus metrics for the relay engine,
// directory client, and directory service.
type PrometheusMetrics struct {
	// Relay engine
	LayersWrapped      prometheus.Counter
	LayersUnwrapped    prometheus.Counter
	PacketsRelayed     prometheus.Counter
	PacketsDelivered   prometheus.Counter
	PacketsDropped     *prometheus.CounterVec
	ActiveWorkers      prometheus.Gauge
	WorkerAdmitTotal   prometheus.Counter
	WorkerRejectTotal  prometheus.Counter
	ConnectionDuration prometheus.Histogram

	// Path selection
	PathSelectFailures *prometheus.CounterVec

	// Directory client
	DirectoryPollTotal   *prometheus.CounterVec
	SnapshotTimestamp    prometheus.Gauge
	SnapshotEntries      prometheus.Gauge

	// Directory service
	DirectoryHTTPRequests *prometheus.CounterVec
	DirectoryRegistrySize prometheus.Gauge

	// Errors
	ErrorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates and registers all metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,

		LayersWrapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "layers_wrapped_total",
			Help:      "Total number of onion layers wrapped.",
		}),
		LayersUnwrapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "layers_unwrapped_total",
			Help:      "Total number of onion layers unwrapped.",
		}),
		PacketsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "packets_relayed_total",
			Help:      "Total number of packets forwarded to a next hop.",
		}),
		PacketsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "packets_delivered_total",
			Help:      "Total number of packets delivered locally (exit node).",
		}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "packets_dropped_total",
			Help:      "Total number of packets dropped, by reason.",
		}, []string{"reason"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cepa",
			Name:      "active_relay_workers",
			Help:      "Number of inbound connections currently being processed.",
		}),
		WorkerAdmitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "worker_admit_total",
			Help:      "Total number of inbound connections admitted to the worker pool.",
		}),
		WorkerRejectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "worker_reject_total",
			Help:      "Total number of inbound connections rejected (pool full or rate limited).",
		}),
		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cepa",
			Name:      "relay_connection_duration_seconds",
			Help:      "Duration of a single relayed/delivered connection.",
			Buckets:   prometheus.DefBuckets,
		}),
		PathSelectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "path_selection_failures_total",
			Help:      "Total number of failed path-selection attempts, by reason.",
		}, []string{"reason"}),
		DirectoryPollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "directory_poll_total",
			Help:      "Total number of directory poll ticks, by outcome.",
		}, []string{"outcome"}),
		SnapshotTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cepa",
			Name:      "directory_snapshot_timestamp",
			Help:      "Timestamp of the currently held directory snapshot.",
		}),
		SnapshotEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cepa",
			Name:      "directory_snapshot_entries",
			Help:      "Number of entries in the currently held directory snapshot.",
		}),
		DirectoryHTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "directory_http_requests_total",
			Help:      "Total HTTP requests served by the directory service, by method and path.",
		}, []string{"method", "path"}),
		DirectoryRegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cepa",
			Name:      "directory_registry_size",
			Help:      "Number of node descriptors currently held by the directory service.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cepa",
			Name:      "errors_total",
			Help:      "Total number of errors, by type.",
		}, []string{"type"}),
	}

	registry.MustRegister(
		m.LayersWrapped,
		m.LayersUnwrapped,
		m.PacketsRelayed,
		m.PacketsDelivered,
		m.PacketsDropped,
		m.ActiveWorkers,
		m.WorkerAdmitTotal,
		m.WorkerRejectTotal,
		m.ConnectionDuration,
		m.PathSelectFailures,
		m.DirectoryPollTotal,
		m.SnapshotTimestamp,
		m.SnapshotEntries,
		m.DirectoryHTTPRequests,
		m.DirectoryRegistrySize,
		m.ErrorsTotal,
	)

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordError records an error by type.
func (m *PrometheusMetrics) RecordError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
