package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "shouldiwash_"

var (
	registerOnce sync.Once

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "api_requests_total",
			Help: "Total API requests by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)
	apiLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// RegisterMetrics registers the client metrics with reg. It is safe to call
// more than once; only the first call registers.
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(apiRequests, apiLatency)
	})
}

func observeRequest(endpoint string, err error, took time.Duration) {
	apiRequests.WithLabelValues(endpoint, resultLabel(err)).Inc()
	apiLatency.WithLabelValues(endpoint).Observe(took.Seconds())
}

func resultLabel(err error) string {
	var apiErr *Error
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		return "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
