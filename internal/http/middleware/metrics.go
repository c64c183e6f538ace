package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels use the registered route, never the raw URL, to keep cardinality
// bounded. Unmatched requests are reported under path="unmatched".
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8),
		},
		[]string{"method", "path"},
	)

	apiRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rejections_total",
			Help: "API requests refused with a domain error code (banned, quota_exceeded, ...).",
		},
		[]string{"code"},
	)

	featureRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_feature_disabled_total",
			Help: "Requests refused because their feature area is disabled.",
		},
		[]string{"feature"},
	)

	idempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "api_idempotent_replays_total",
			Help: "Requests answered from a stored idempotency record.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize,
		apiRejections, featureRejections, idempotentReplays)
}

// Metrics instruments every request with the http_* collectors.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// CountRejection records a domain rejection by error code.
func CountRejection(code string) {
	apiRejections.WithLabelValues(code).Inc()
}
