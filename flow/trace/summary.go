package trace

import "time"

// TraceSummary aggregates statistics from one or more Recorders.
type TraceSummary struct {
	TotalSpans   int
	TotalTime    time.Duration
	UniqueStates int
	Busiest      string                   // state with the largest total time
	PerState     map[string]time.Duration // state name → total time
	PerRank      map[int]time.Duration    // rank → total time
}

// Summarize computes aggregate statistics across recorders.
// Safe for nil or empty recorders (returns zero-value fields).
func Summarize(recs ...*Recorder) *TraceSummary {
	summary := &TraceSummary{
		PerState: make(map[string]time.Duration),
		PerRank:  make(map[int]time.Duration),
	}
	var busiest time.Duration
	for _, r := range recs {
		if r == nil {
			continue
		}
		for _, st := range r.States() {
			if st.Count == 0 {
				continue
			}
			summary.TotalSpans += st.Count
			summary.TotalTime += st.Total
			summary.PerState[st.Name] += st.Total
			summary.PerRank[r.Config.Rank] += st.Total
		}
	}
	for name, total := range summary.PerState {
		if total > busiest || (total == busiest && name < summary.Busiest) {
			busiest = total
			summary.Busiest = name
		}
	}
	summary.UniqueStates = len(summary.PerState)
	return summary
}
