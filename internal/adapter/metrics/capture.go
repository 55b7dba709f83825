package metrics

import "github.com/prometheus/client_golang/prometheus"

// CaptureMetrics holds Prometheus metrics for the render-capture-stream pipeline.
type CaptureMetrics struct {
	RenderPasses   *prometheus.CounterVec
	RenderDuration prometheus.Histogram
	FramesEncoded  prometheus.Counter
	SinkClients    prometheus.Gauge
	MemoryRatio    prometheus.Gauge
}

func NewCaptureMetrics(reg prometheus.Registerer) *CaptureMetrics {
	m := &CaptureMetrics{
		RenderPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "render_passes_total",
			Help:      "Total number of render passes, by result.",
		}, []string{"result"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "render_duration_seconds",
			Help:      "Duration of a render and capture pass.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FramesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_encoded_total",
			Help:      "Total number of distinct frames encoded for the stream sink.",
		}),
		SinkClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "sink_clients",
			Help:      "Number of clients attached to the MJPEG stream.",
		}),
		MemoryRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "memory_usage_ratio",
			Help:      "Heap in use as a fraction of the configured limit, as of the last probe.",
		}),
	}

	reg.MustRegister(m.RenderPasses, m.RenderDuration, m.FramesEncoded, m.SinkClients, m.MemoryRatio)
	return m
}
