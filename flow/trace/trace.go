package trace

import (
	"sync"
	"time"
)

// TraceLevel controls the verbosity of span tracing.
type TraceLevel string

const (
	// TraceLevelNone disables recording; state ids are still handed out.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelStates aggregates counts and durations per state.
	TraceLevelStates TraceLevel = "states"
	// TraceLevelSpans additionally keeps every individual span.
	TraceLevelSpans TraceLevel = "spans"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelStates: true,
	TraceLevelSpans:  true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	Rank  int // stamped on every span
}

// Recorder collects profiling spans. It satisfies flow.Profiler.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	Config TraceConfig

	mu     sync.Mutex
	now    func() time.Time
	ids    map[string]int
	states []StateRecord
	open   map[int][]time.Time
	spans  []SpanRecord
}

// NewRecorder creates a Recorder ready for recording.
func NewRecorder(config TraceConfig) *Recorder {
	return &Recorder{
		Config: config,
		now:    time.Now,
		ids:    make(map[string]int),
		open:   make(map[int][]time.Time),
		spans:  make([]SpanRecord, 0),
	}
}

func (r *Recorder) enabled() bool {
	return r.Config.Level == TraceLevelStates || r.Config.Level == TraceLevelSpans
}

// DefineState returns the id of the named state, creating it on first use.
func (r *Recorder) DefineState(name, color string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := len(r.states)
	r.ids[name] = id
	r.states = append(r.states, StateRecord{Name: name, Color: color})
	return id
}

// EnterState opens a span of state id.
func (r *Recorder) EnterState(id int) {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[id] = append(r.open[id], r.now())
}

// LeaveState closes the innermost open span of state id. Unmatched leaves
// are ignored.
func (r *Recorder) LeaveState(id int) {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stack := r.open[id]
	if len(stack) == 0 || id < 0 || id >= len(r.states) {
		return
	}
	start := stack[len(stack)-1]
	r.open[id] = stack[:len(stack)-1]
	d := r.now().Sub(start)
	st := &r.states[id]
	st.Count++
	st.Total += d
	if d > st.Max {
		st.Max = d
	}
	if r.Config.Level == TraceLevelSpans {
		r.spans = append(r.spans, SpanRecord{State: st.Name, Rank: r.Config.Rank, Start: start, Duration: d})
	}
}

// States returns a snapshot of the per-state aggregates in definition order.
func (r *Recorder) States() []StateRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StateRecord(nil), r.states...)
}

// Spans returns a snapshot of the recorded spans in completion order.
func (r *Recorder) Spans() []SpanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SpanRecord(nil), r.spans...)
}
