// Package metrics exposes a chat server's live state as Prometheus
// metrics, polling the server directly on every scrape rather than
// caching counters that could drift from its actual roster.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
)

// Server is the subset of *chatserver.Server the collector depends on,
// kept narrow so this package doesn't import chatserver directly.
type Server interface {
	RosterSize() int
	MessagesHandled() uint64
}

// Collector adapts a Server to prometheus.Collector. Each process gets a
// stable instance id (via xid, sortable and collision-resistant without a
// central allocator) attached as a const label, so metrics from multiple
// server instances scraped through the same federation target stay
// distinguishable.
type Collector struct {
	server     Server
	instanceID string

	rosterDesc   *prometheus.Desc
	messagesDesc *prometheus.Desc
}

// NewCollector builds a Collector reporting on server.
func NewCollector(server Server) *Collector {
	id := xid.New().String()
	constLabels := prometheus.Labels{"instance": id}
	return &Collector{
		server:     server,
		instanceID: id,
		rosterDesc: prometheus.NewDesc(
			"chatline_server_roster_size",
			"Number of users currently on the server roster.",
			nil, constLabels,
		),
		messagesDesc: prometheus.NewDesc(
			"chatline_server_messages_handled_total",
			"Total number of wire messages dispatched by the server.",
			nil, constLabels,
		),
	}
}

// InstanceID returns the xid assigned to this collector's server at
// construction time, for correlating logs with scraped metrics.
func (c *Collector) InstanceID() string {
	return c.instanceID
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.rosterDesc
	descs <- c.messagesDesc
}

// Collect implements prometheus.Collector, reading the server's live
// state rather than values cached at Describe time.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(
		c.rosterDesc, prometheus.GaugeValue, float64(c.server.RosterSize()),
	)
	metrics <- prometheus.MustNewConstMetric(
		c.messagesDesc, prometheus.CounterValue, float64(c.server.MessagesHandled()),
	)
}
