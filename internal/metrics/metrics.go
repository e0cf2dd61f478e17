// Package metrics holds Prometheus instruments that are used across the
// module.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BindRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binder_requests_total",
			Help: "Bind requests by HTTP verb and outcome.",
		}, []string{"verb", "outcome"})

	ViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "binder_violations_total",
			Help: "Cumulative number of standardized validation errors returned to clients.",
		})

	FlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_flush_total",
			Help: "Unit-of-work flushes by result (ok, error).",
		}, []string{"result"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"})
)

func init() {
	prometheus.MustRegister(
		BindRequestsTotal,
		ViolationsTotal,
		FlushTotal,
		HTTPRequestDuration,
	)
}
