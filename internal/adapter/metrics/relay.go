package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for the broadcast relay.
type RelayMetrics struct {
	Ingests          *prometheus.CounterVec
	FanoutDuration   prometheus.Histogram
	Subscribers      prometheus.Gauge
	Evictions        *prometheus.CounterVec
	MirrorPublishes  *prometheus.CounterVec
	CommandQueueSize prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "ingests_total",
			Help:      "Total number of ingest attempts, by result.",
		}, []string{"result"}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "fanout_duration_seconds",
			Help:      "Time taken to hand one payload to every subscriber.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "subscribers",
			Help:      "Number of registered subscribers.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "evictions_total",
			Help:      "Total number of subscribers removed by the relay, by reason.",
		}, []string{"reason"}),
		MirrorPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "mirror_publishes_total",
			Help:      "Total number of payloads sent to the Redis mirror, by result.",
		}, []string{"result"}),
		CommandQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "command_queue_depth",
			Help:      "Commands waiting for the relay loop.",
		}),
	}

	reg.MustRegister(m.Ingests, m.FanoutDuration, m.Subscribers, m.Evictions, m.MirrorPublishes, m.CommandQueueSize)
	return m
}
