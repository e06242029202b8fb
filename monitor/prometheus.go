// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector turns lifecycle events and byte counters into
// Prometheus metrics. It is never registered automatically: the
// embedding application calls MustRegister (or Register) on the
// vectors it wants exposed, same as any other collector.
type PromCollector struct {
	Events   *prometheus.CounterVec
	BytesIn  prometheus.Counter
	BytesOut prometheus.Counter
}

// NewPromCollector builds a PromCollector with metric names prefixed
// by namespace (e.g. "zlink").
func NewPromCollector(namespace string) *PromCollector {
	return &PromCollector{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Count of STREAM connection lifecycle events by code.",
		}, []string{"code"}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_in_total",
			Help:      "Bytes read from STREAM peer transports.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_out_total",
			Help:      "Bytes written to STREAM peer transports.",
		}),
	}
}

// Collectors returns the individual prometheus.Collector values for
// registration, e.g. via prometheus.Registerer.MustRegister(c.Collectors()...).
func (c *PromCollector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.Events, c.BytesIn, c.BytesOut}
}

// Hooks returns a Hooks value wired to increment c.Events per code,
// suitable for passing directly to an engine/socket's monitor option.
func (c *PromCollector) Hooks() Hooks {
	observe := func(ev Event) { c.Events.WithLabelValues(ev.Code.String()).Inc() }
	return Hooks{
		OnConnected:               observe,
		OnAccepted:                observe,
		OnConnectDelayed:          observe,
		OnConnectRetried:          observe,
		OnConnectionReady:         observe,
		OnHandshakeFailedNoDetail: observe,
		OnHandshakeFailedProtocol: observe,
		OnHandshakeFailedAuth:     observe,
		OnDisconnected:            observe,
	}
}

// AddBytesIn/AddBytesOut let the engine report transfer volume without
// importing prometheus directly; called only when a collector is set.
func (c *PromCollector) AddBytesIn(n int)  { c.BytesIn.Add(float64(n)) }
func (c *PromCollector) AddBytesOut(n int) { c.BytesOut.Add(float64(n)) }
