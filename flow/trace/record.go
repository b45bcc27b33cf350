// Package trace provides span recording for profiling graph execution.
// This package has no dependencies on flow/; it stores pure data types and
// satisfies flow.Profiler structurally.
package trace

import "time"

// StateRecord aggregates all spans of one named state.
type StateRecord struct {
	Name  string
	Color string
	Count int
	Total time.Duration
	Max   time.Duration
}

// SpanRecord captures one closed span.
type SpanRecord struct {
	State    string
	Rank     int
	Start    time.Time
	Duration time.Duration
}
