package metrics

import "github.com/prometheus/client_golang/prometheus"

// ViewerMetrics holds Prometheus metrics for the viewer's connection to the relay.
type ViewerMetrics struct {
	StatusChanges    *prometheus.CounterVec
	ReconnectDelay   prometheus.Gauge
	PayloadsReceived prometheus.Counter
	MalformedDropped prometheus.Counter
}

func NewViewerMetrics(reg prometheus.Registerer) *ViewerMetrics {
	m := &ViewerMetrics{
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "status_changes_total",
			Help:      "Total number of connection status transitions, by new status.",
		}, []string{"status"}),
		ReconnectDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "reconnect_delay_seconds",
			Help:      "Delay of the currently scheduled reconnect, zero when none is pending.",
		}),
		PayloadsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "payloads_received_total",
			Help:      "Total number of valid payloads received from the relay.",
		}),
		MalformedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "malformed_dropped_total",
			Help:      "Total number of messages dropped because they did not decode.",
		}),
	}

	reg.MustRegister(m.StatusChanges, m.ReconnectDelay, m.PayloadsReceived, m.MalformedDropped)
	return m
}
