package metrics

import (
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusOK:                 "2xx",
		http.StatusMovedPermanently:   "3xx",
		http.StatusNotFound:           "4xx",
		http.StatusTooManyRequests:    "429",
		http.StatusServiceUnavailable: "5xx",
		0:                             "error",
		999:                           "unknown",
	}
	for code, want := range cases {
		if got := classifyStatus(code); got != want {
			t.Errorf("classifyStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestErrorTotal(t *testing.T) {
	var m IngestMetrics
	m.RetryExhausted.Add(2)
	m.MissingName.Add(1)
	m.StoreFailed.Add(3)
	m.Success.Add(10)
	if got := m.ErrorTotal(); got != 6 {
		t.Errorf("ErrorTotal() = %d, want 6", got)
	}
}
