package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cnsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cns_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	cnsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cns_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	cnsDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cns_decisions_total",
		Help: "Total governance decisions by outcome.",
	}, []string{"outcome"})

	cnsForwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cns_forwards_total",
		Help: "Total payload forwards by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		cnsRequestsTotal.WithLabelValues(method, path, status).Inc()
		cnsRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordDecision records a governance decision outcome.
func RecordDecision(outcome string) {
	cnsDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordForward records a payload forward attempt.
func RecordForward(success bool) {
	if success {
		cnsForwardsTotal.WithLabelValues("success").Inc()
	} else {
		cnsForwardsTotal.WithLabelValues("failure").Inc()
	}
}
