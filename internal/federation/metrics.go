package federation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	yamrQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yamr_federation_queries_total",
			Help: "Number of federated queries by operation.",
		},
		[]string{"operation"},
	)
	yamrBackendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yamr_federation_backend_errors_total",
			Help: "Number of backend failures skipped during federated operations.",
		},
		[]string{"operation"},
	)
	yamrFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yamr_federation_fetches_total",
			Help: "Number of artifact fetches by result.",
		},
		[]string{"result"},
	)

	yamrFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yamr_federation_fetch_duration_seconds",
			Help:    "Time taken to locate and open an artifact.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		yamrQueriesTotal,
		yamrBackendErrorsTotal,
		yamrFetchesTotal,
		yamrFetchDuration,
	)
}
