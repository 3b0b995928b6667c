package metrics

import "sync/atomic"

// IngestMetrics is the live tally of one run. Workers update it concurrently.
type IngestMetrics struct {
	Attempted atomic.Int64
	Success   atomic.Int64
	Inserted  atomic.Int64
	Updated   atomic.Int64
	NotFound  atomic.Int64

	RetryExhausted   atomic.Int64
	FatalStatus      atomic.Int64
	MalformedPayload atomic.Int64
	MissingName      atomic.Int64
	StoreFailed      atomic.Int64
}

func (m *IngestMetrics) ErrorTotal() int64 {
	return m.RetryExhausted.Load() +
		m.FatalStatus.Load() +
		m.MalformedPayload.Load() +
		m.MissingName.Load() +
		m.StoreFailed.Load()
}
