package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/datapath"
)

const namespace = "zenoh_bridge_dds"

// Metrics holds the bridge's prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Routes           *prometheus.GaugeVec
	DiscoveryEvents  *prometheus.CounterVec
	DiscoveryLost    prometheus.Counter
	AllowRejected    prometheus.Counter
	Duplicates       prometheus.Counter
	RouteErrors      *prometheus.CounterVec
	RouteFailures    prometheus.Counter
	SamplesForwarded *prometheus.CounterVec
	SamplesDropped   *prometheus.CounterVec
}

var _ datapath.Stats = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them, with the Go
// runtime collectors, on a new registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Routes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes",
			Help:      "Number of routes by direction and state",
		}, []string{"direction", "state"}),
		DiscoveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "events_total",
			Help:      "Discovery events processed by kind",
		}, []string{"kind"}),
		DiscoveryLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "events_lost_total",
			Help:      "Discovery events dropped on a full channel",
		}),
		AllowRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allow_rejected_total",
			Help:      "Discovery events rejected by the allow filter",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_discoveries_total",
			Help:      "Discoveries folded into an existing route",
		}),
		RouteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_errors_total",
			Help:      "Routes that could not be created",
		}, []string{"direction"}),
		RouteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_failures_total",
			Help:      "Forwarding tasks that ended on their own",
		}),
		SamplesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "forwarded_total",
			Help:      "Samples forwarded by direction",
		}, []string{"direction"}),
		SamplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "dropped_total",
			Help:      "Samples dropped by direction and reason",
		}, []string{"direction", "reason"}),
	}

	m.registry.MustRegister(
		m.Routes,
		m.DiscoveryEvents,
		m.DiscoveryLost,
		m.AllowRejected,
		m.Duplicates,
		m.RouteErrors,
		m.RouteFailures,
		m.SamplesForwarded,
		m.SamplesDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to serve on /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddForwarded counts one forwarded sample
func (m *Metrics) AddForwarded(dir datapath.Direction) {
	m.SamplesForwarded.WithLabelValues(string(dir)).Inc()
}

// AddDropped counts one dropped sample
func (m *Metrics) AddDropped(dir datapath.Direction, reason string) {
	m.SamplesDropped.WithLabelValues(string(dir), reason).Inc()
}
