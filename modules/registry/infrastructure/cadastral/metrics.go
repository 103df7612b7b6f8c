package cadastral

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	cacheHits      *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		requestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "lookup_requests_total",
			Help:      "Requests to external cadastral services, by service and result.",
		}, []string{"service", "result"}),
		requestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registry",
			Name:      "lookup_latency_seconds",
			Help:      "Latency of external cadastral requests.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		}, []string{"service"}),
		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "lookup_cache_hits_total",
			Help:      "Lookups answered from the cache.",
		}, []string{"service"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
