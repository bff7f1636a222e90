package middleware

import (
	"sereno/services"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	friendOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_operations_total",
			Help: "Total number of friend store operations by outcome",
		},
		[]string{"operation", "status"},
	)

	friendOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "friend_operation_duration_seconds",
			Help:    "Duration of friend store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status, serviceName).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, serviceName).Observe(duration)
	}
}

// RecordFriendOperation counts one friend operation; status is "ok" or the error kind
func RecordFriendOperation(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = string(services.KindOf(err))
	}
	friendOperationsTotal.WithLabelValues(operation, status).Inc()
	friendOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
