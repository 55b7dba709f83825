package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssetCacheMetrics tracks the decoded tile image cache.
type AssetCacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	LoadFails prometheus.Counter
}

func NewAssetCacheMetrics(reg prometheus.Registerer) *AssetCacheMetrics {
	m := &AssetCacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "asset_cache",
			Name:      "hits_total",
			Help:      "Total number of tile image cache hits.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "asset_cache",
			Name:      "misses_total",
			Help:      "Total number of tile image cache misses.",
		}),
		LoadFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "asset_cache",
			Name:      "load_failures_total",
			Help:      "Total number of tile images that could not be read or decoded.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.LoadFails)
	return m
}
