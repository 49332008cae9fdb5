package server

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	dashboardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shouldiwash_dashboard_requests_total",
			Help: "Total dashboard requests by method and status code",
		},
		[]string{"method", "code"},
	)
)

// RegisterMetrics registers the dashboard metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(dashboardRequests)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(dashboardRequests, next)
}
