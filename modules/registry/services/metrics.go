package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rowsTotal      *prometheus.CounterVec
	flushTotal     *prometheus.CounterVec
	importTotal    *prometheus.CounterVec
	importDuration prometheus.Histogram

	resolveTotal *prometheus.CounterVec
	sitesCreated prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "import_rows_total",
			Help:      "Data rows processed by the import pipeline, by outcome.",
		}, []string{"outcome"}),
		flushTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "import_flush_total",
			Help:      "Batch commits issued by the import pipeline.",
		}, []string{"result"}),
		importTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "import_runs_total",
			Help:      "Completed import runs.",
		}, []string{"result"}),
		importDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "registry",
			Name:      "import_duration_seconds",
			Help:      "Wall time of import runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		resolveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "site_resolution_total",
			Help:      "Site resolutions, by status.",
		}, []string{"status"}),
		sitesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "sites_created_total",
			Help:      "Sites created by enrichment.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
