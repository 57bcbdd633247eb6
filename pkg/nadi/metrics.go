package nadi

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Context's Prometheus collectors.
type Metrics struct {
	MessagesSent    *prometheus.CounterVec // result: accepted, rejected
	Deliveries      prometheus.Counter
	Unrouted        prometheus.Counter // accepted messages with no destination
	Released        prometheus.Counter
	Discarded       prometheus.Counter // queued deliveries dropped by node destruction
	CallbackPanics  prometheus.Counter
	CallbackSeconds prometheus.Histogram
	ControlRequests *prometheus.CounterVec // type, status
	Nodes           prometheus.Gauge
	Edges           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nadi",
				Subsystem: "dispatch",
				Name:      "messages_sent_total",
				Help:      "Messages handed to Send, by result",
			},
			[]string{"result"},
		),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nadi",
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Deliveries queued to node mailboxes",
		}),
		Unrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nadi",
			Subsystem: "dispatch",
			Name:      "unrouted_total",
			Help:      "Accepted messages that had no destination",
		}),
		Released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nadi",
			Subsystem: "dispatch",
			Name:      "released_total",
			Help:      "Accepted messages whose release callback has fired",
		}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nadi",
			Subsystem: "dispatch",
			Name:      "discarded_total",
			Help:      "Queued deliveries dropped because their node was destroyed",
		}),
		CallbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nadi",
			Subsystem: "dispatch",
			Name:      "callback_panics_total",
			Help:      "Receive callbacks that panicked",
		}),
		CallbackSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nadi",
			Subsystem: "dispatch",
			Name:      "callback_duration_seconds",
			Help:      "Time spent in receive callbacks",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		ControlRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nadi",
				Subsystem: "control",
				Name:      "requests_total",
				Help:      "Control requests handled, by type and status",
			},
			[]string{"type", "status"},
		),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nadi",
			Subsystem: "registry",
			Name:      "nodes",
			Help:      "Live nodes, including the context node",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nadi",
			Subsystem: "routing",
			Name:      "edges",
			Help:      "Edges in the routing table",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MessagesSent, m.Deliveries, m.Unrouted, m.Released, m.Discarded,
			m.CallbackPanics, m.CallbackSeconds, m.ControlRequests, m.Nodes, m.Edges,
		)
	}
	return m
}
