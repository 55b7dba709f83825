package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics tracks live subscriber connections per transport (sse, websocket, centrifuge).
type StreamMetrics struct {
	ActiveConnections *prometheus.GaugeVec
	MessagesSent      *prometheus.CounterVec
	SlowClientsClosed *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
}

func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Number of open subscriber connections, by transport.",
		}, []string{"transport"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Total number of payload messages written to subscribers, by transport.",
		}, []string{"transport"}),
		SlowClientsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "slow_clients_closed_total",
			Help:      "Total number of subscriber connections closed because writes stalled, by transport.",
		}, []string{"transport"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "rejected_total",
			Help:      "Total number of stream connections refused by the per-address limits, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesSent, m.SlowClientsClosed, m.Rejected)
	return m
}
