package middleware

import (
	"net/http"
	"time"

	"catalog_ingest/metrics"
)

// Prometheus records every outgoing request under endpoint, which should be a
// route template rather than the concrete path to keep label cardinality low.
func Prometheus(endpoint string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			metrics.RecordRequest(r.Method, endpoint, status, time.Since(start))
			return resp, err
		})
	}
}
