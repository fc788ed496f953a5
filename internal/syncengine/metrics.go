package syncengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for one engine.
type Metrics struct {
	Mutations     *prometheus.CounterVec
	Rollbacks     *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Anomalies     prometheus.Counter
	CacheSize     *prometheus.GaugeVec
}

// NewMetrics creates engine metrics on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kennelsync_mutations_total",
			Help: "Optimistic mutations by action and outcome (committed, rolled_back, rejected)",
		}, []string{"action", "outcome"}),
		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kennelsync_rollbacks_total",
			Help: "Local rollbacks after a failed remote write, by error class",
		}, []string{"reason"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kennelsync_fetch_duration_seconds",
			Help:    "Duration of remote fetches by kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		Anomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "kennelsync_fetch_anomalies_total",
			Help: "Full fetches that returned less than half of the previous entity count",
		}),
		CacheSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kennelsync_cache_entries",
			Help: "Entries held in each local collection",
		}, []string{"collection"}),
	}
}
