package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetch_requests_total",
			Help: "Total number of outgoing storefront HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_fetch_request_duration_seconds",
			Help:    "Histogram of outgoing storefront HTTP request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)
	ingestOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_outcomes_total",
			Help: "Identifiers processed, by outcome.",
		},
		[]string{"outcome"},
	)
	ingestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_fetch_in_flight",
			Help: "Storefront requests currently awaiting a response.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(ingestOutcomesTotal)
	prometheus.MustRegister(ingestInFlight)
}

// RecordRequest observes one storefront request attempt. A statusCode of 0
// means no response was received.
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordOutcome counts one finished unit of work.
func RecordOutcome(outcome string) {
	ingestOutcomesTotal.WithLabelValues(outcome).Inc()
}

func SetInFlight(n int) {
	ingestInFlight.Set(float64(n))
}

// classifyStatus keeps 429 apart from other 4xx so throttling shows up on its own.
func classifyStatus(statusCode int) string {
	switch {
	case statusCode == 0:
		return "error"
	case statusCode == http.StatusTooManyRequests:
		return "429"
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
