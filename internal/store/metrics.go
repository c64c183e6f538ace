package store

import "github.com/prometheus/client_golang/prometheus"

var (
	// savesTotal counts save outcomes per collection: ok, error, stale, coalesced.
	savesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_saves_total",
			Help: "Collection snapshot saves by outcome.",
		},
		[]string{"collection", "result"},
	)

	saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_save_duration_seconds",
			Help:    "Time spent encoding and writing one collection snapshot.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"collection"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_load_duration_seconds",
			Help:    "Time spent reading and decoding one collection file.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	loadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_load_errors_total",
			Help: "Collection files that could not be read or decoded.",
		},
		[]string{"collection"},
	)
)

func init() {
	prometheus.MustRegister(savesTotal, saveDuration, loadDuration, loadErrors)
}
