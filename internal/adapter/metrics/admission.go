package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdmissionMetrics holds Prometheus metrics for connection admission.
type AdmissionMetrics struct {
	ActiveClaims  prometheus.Gauge
	ActiveOrigins prometheus.Gauge
	CapacityUsed  prometheus.Gauge
	Claims        prometheus.Counter
	Rejections    *prometheus.CounterVec
}

// NewAdmissionMetrics creates and registers admission metrics on the given registry.
func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	m := &AdmissionMetrics{
		ActiveClaims: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "active_claims",
			Help:      "Number of admission claims currently held.",
		}),
		ActiveOrigins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "active_origins",
			Help:      "Number of distinct origins holding at least one claim.",
		}),
		CapacityUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "capacity_used_percent",
			Help:      "Share of the global connection limit currently claimed, in percent.",
		}),
		Claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "claims_total",
			Help:      "Total number of accepted admission claims.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "rejections_total",
			Help:      "Total number of rejected connection attempts, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveClaims, m.ActiveOrigins, m.CapacityUsed, m.Claims, m.Rejections)
	return m
}
