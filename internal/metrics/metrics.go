// Package metrics exports Prometheus gauges for the connections this
// stack runs, following the collector pattern of
// wrapping a snapshot-producing source behind Describe/Collect rather than
// registering metrics eagerly per connection.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionStats is a point-in-time snapshot of a connection's internal
// counters, supplied by the caller on each Collect.
type ConnectionStats struct {
	BytesInFlight          uint64
	ConsecutiveRetx        int
	RTOMillis              uint64
	SenderStreamBytes      uint64
	ReceiverStreamBytes    uint64
	Active                 bool
	SynSent, FinSent       bool
	SynReceived, FinReceived bool
}

// Source is implemented by anything willing to report its current
// connection roster to the collector at scrape time.
type Source interface {
	Snapshot() map[string]ConnectionStats
}

var descriptions = map[string]*prometheus.Desc{
	"bytes_in_flight":      prometheus.NewDesc("minnet_connection_bytes_in_flight", "Bytes sent but not yet acknowledged.", []string{"conn"}, nil),
	"consecutive_retx":     prometheus.NewDesc("minnet_connection_consecutive_retransmissions", "Consecutive retransmissions of the oldest outstanding segment.", []string{"conn"}, nil),
	"rto_millis":           prometheus.NewDesc("minnet_connection_rto_milliseconds", "Current retransmission timeout.", []string{"conn"}, nil),
	"sender_stream_bytes":  prometheus.NewDesc("minnet_connection_sender_stream_bytes", "Bytes buffered in the outbound byte stream.", []string{"conn"}, nil),
	"receiver_stream_bytes": prometheus.NewDesc("minnet_connection_receiver_stream_bytes", "Bytes buffered in the inbound byte stream.", []string{"conn"}, nil),
	"active":               prometheus.NewDesc("minnet_connection_active", "1 if the connection has not yet shut down.", []string{"conn"}, nil),
}

// Collector implements prometheus.Collector over a Source, reading a fresh
// snapshot on every Collect call rather than caching connection state
// itself.
type Collector struct {
	mu     sync.Mutex
	source Source
}

// NewCollector wraps source for registration with a prometheus.Registry.
func NewCollector(source Source) *Collector {
	return &Collector{source: source}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptions {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, s := range c.source.Snapshot() {
		ch <- prometheus.MustNewConstMetric(descriptions["bytes_in_flight"], prometheus.GaugeValue, float64(s.BytesInFlight), id)
		ch <- prometheus.MustNewConstMetric(descriptions["consecutive_retx"], prometheus.GaugeValue, float64(s.ConsecutiveRetx), id)
		ch <- prometheus.MustNewConstMetric(descriptions["rto_millis"], prometheus.GaugeValue, float64(s.RTOMillis), id)
		ch <- prometheus.MustNewConstMetric(descriptions["sender_stream_bytes"], prometheus.GaugeValue, float64(s.SenderStreamBytes), id)
		ch <- prometheus.MustNewConstMetric(descriptions["receiver_stream_bytes"], prometheus.GaugeValue, float64(s.ReceiverStreamBytes), id)
		active := 0.0
		if s.Active {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(descriptions["active"], prometheus.GaugeValue, active, id)
	}
}

// Registry is a tiny convenience wrapper bundling a prometheus.Registry
// with the connection collector, matching the shape cmd/ binaries want to
// construct once at startup.
type Registry struct {
	*prometheus.Registry
}

// NewRegistry builds a registry with the connection collector pre-registered.
func NewRegistry(source Source) (*Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, fmt.Errorf("metrics: register collector: %w", err)
	}
	return &Registry{Registry: reg}, nil
}
