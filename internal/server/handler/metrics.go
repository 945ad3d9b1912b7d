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
	custodiaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	custodiaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custodia_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	custodiaLedgerEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "custodia_ledger_entries_total",
		Help: "Total custody ledger entries appended.",
	})

	custodiaIntegrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_integrity_checks_total",
		Help: "Total integrity verifications by result status.",
	}, []string{"status"})

	custodiaAccessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_access_decisions_total",
		Help: "Total access gate decisions by outcome.",
	}, []string{"outcome"})
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

		custodiaRequestsTotal.WithLabelValues(method, path, status).Inc()
		custodiaRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend records a custody ledger entry append.
func RecordLedgerAppend() {
	custodiaLedgerEntriesTotal.Inc()
}

// RecordIntegrityCheck records an integrity verification result.
func RecordIntegrityCheck(status string) {
	custodiaIntegrityChecksTotal.WithLabelValues(status).Inc()
}

// RecordAccessDecision records an access gate decision.
func RecordAccessDecision(allowed bool) {
	if allowed {
		custodiaAccessDecisionsTotal.WithLabelValues("allowed").Inc()
	} else {
		custodiaAccessDecisionsTotal.WithLabelValues("denied").Inc()
	}
}
