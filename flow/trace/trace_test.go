package trace

import (
	"testing"
	"time"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestRecorder_DefineState_SameNameSameID(t *testing.T) {
	// GIVEN a recorder
	r := NewRecorder(TraceConfig{Level: TraceLevelStates})

	// WHEN the same state is defined twice
	a := r.DefineState("a read", "green")
	b := r.DefineState("b read", "green")
	again := r.DefineState("a read", "red")

	// THEN ids are stable and distinct per name
	if a != again {
		t.Errorf("expected stable id %d, got %d", a, again)
	}
	if a == b {
		t.Error("expected distinct ids for distinct names")
	}
	if got := r.States()[a].Color; got != "green" {
		t.Errorf("expected first color to stick, got %s", got)
	}
}

func TestRecorder_EnterLeave_Aggregates(t *testing.T) {
	// GIVEN a recorder whose clock advances 1ms per reading
	r := NewRecorder(TraceConfig{Level: TraceLevelSpans, Rank: 3})
	r.now = fakeClock(time.Millisecond)
	id := r.DefineState("x process", "blue")

	// WHEN two spans are recorded
	r.EnterState(id)
	r.LeaveState(id)
	r.EnterState(id)
	r.LeaveState(id)

	// THEN both are aggregated and kept
	st := r.States()[id]
	if st.Count != 2 {
		t.Fatalf("expected 2 spans, got %d", st.Count)
	}
	if st.Total != 2*time.Millisecond {
		t.Errorf("expected 2ms total, got %v", st.Total)
	}
	spans := r.Spans()
	if len(spans) != 2 || spans[0].Rank != 3 || spans[0].State != "x process" {
		t.Errorf("unexpected spans %+v", spans)
	}
}

func TestRecorder_StatesLevel_NoSpans(t *testing.T) {
	r := NewRecorder(TraceConfig{Level: TraceLevelStates})
	id := r.DefineState("s", "")

	r.EnterState(id)
	r.LeaveState(id)

	if len(r.Spans()) != 0 {
		t.Error("expected no individual spans at states level")
	}
	if r.States()[id].Count != 1 {
		t.Error("expected the span to be aggregated")
	}
}

func TestRecorder_NoneLevel_RecordsNothing(t *testing.T) {
	r := NewRecorder(TraceConfig{Level: TraceLevelNone})
	id := r.DefineState("s", "")

	r.EnterState(id)
	r.LeaveState(id)

	if r.States()[id].Count != 0 {
		t.Error("expected nothing recorded at level none")
	}
}

func TestRecorder_UnmatchedLeave_Ignored(t *testing.T) {
	r := NewRecorder(TraceConfig{Level: TraceLevelStates})
	id := r.DefineState("s", "")

	r.LeaveState(id)
	r.LeaveState(42)

	if r.States()[id].Count != 0 {
		t.Error("expected unmatched leave to be ignored")
	}
}

func TestIsValidTraceLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"states", true},
		{"spans", true},
		{"", true},
		{"verbose", false},
	}
	for _, tc := range tests {
		if got := IsValidTraceLevel(tc.level); got != tc.valid {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tc.level, got, tc.valid)
		}
	}
}
