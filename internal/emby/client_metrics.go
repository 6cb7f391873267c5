package emby

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embywatch_emby_requests_total",
		Help: "Outcome of Emby API requests by logical operation",
	}, []string{
		"operation", // sessions|playing_pause|program_by_id|...
		"result",    // ok|auth|forbidden|not_found|timeout|unavailable|bad_response|upstream
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embywatch_emby_request_duration_seconds",
		Help:    "Duration of Emby API requests by logical operation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"operation"})
)

func observeRequest(operation, result string, d time.Duration) {
	requestTotal.WithLabelValues(operation, result).Inc()
	requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}
