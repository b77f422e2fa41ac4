package metrics

import "github.com/prometheus/client_golang/prometheus"

// ControlMetrics holds Prometheus metrics for the control channel.
type ControlMetrics struct {
	Commands      *prometheus.CounterVec
	Ignored       *prometheus.CounterVec
	ReadFailures  *prometheus.CounterVec
	CommandTiming prometheus.Histogram
}

// NewControlMetrics creates and registers control channel metrics on the given registry.
func NewControlMetrics(reg prometheus.Registerer) *ControlMetrics {
	m := &ControlMetrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Total number of control commands executed, by command and source.",
		}, []string{"command", "source"}),
		Ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "ignored_lines_total",
			Help:      "Total number of control lines dropped as malformed, by source.",
		}, []string{"source"}),
		ReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "read_failures_total",
			Help:      "Total number of record or history reads that failed, by file.",
		}, []string{"file"}),
		CommandTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "command_duration_seconds",
			Help:      "Duration of control command execution in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	reg.MustRegister(m.Commands, m.Ignored, m.ReadFailures, m.CommandTiming)
	return m
}
