package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics holds Prometheus metrics for the broker and the per-connection stream pumps.
type StreamMetrics struct {
	ConnectedClients  prometheus.Gauge
	EventsBroadcast   *prometheus.CounterVec
	Deliveries        prometheus.Counter
	MailboxDrops      prometheus.Counter
	FramesWritten     *prometheus.CounterVec
	Heartbeats        prometheus.Counter
	WriteFailures     prometheus.Counter
	ConnectionSeconds prometheus.Histogram
}

// NewStreamMetrics creates and registers stream metrics on the given registry.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connected_clients",
			Help:      "Number of clients currently registered with the broker.",
		}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "events_broadcast_total",
			Help:      "Total number of events broadcast, by event type.",
		}, []string{"event"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "mailbox_deliveries_total",
			Help:      "Total number of events put into client mailboxes.",
		}),
		MailboxDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "mailbox_dropped_total",
			Help:      "Total number of queued events discarded because a mailbox was full.",
		}),
		FramesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_written_total",
			Help:      "Total number of event frames written to consumers, by transport.",
		}, []string{"transport"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "heartbeats_total",
			Help:      "Total number of keepalive frames written.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "write_failures_total",
			Help:      "Total number of streams closed because a write failed.",
		}),
		ConnectionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of streaming connections in seconds.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}),
	}

	reg.MustRegister(
		m.ConnectedClients, m.EventsBroadcast, m.Deliveries, m.MailboxDrops,
		m.FramesWritten, m.Heartbeats, m.WriteFailures, m.ConnectionSeconds,
	)
	return m
}
