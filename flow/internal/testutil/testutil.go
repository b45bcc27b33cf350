// Package testutil provides shared fixtures for the flow test packages:
// a call log, a recording WorkHolder, a recording Profiler and a stub
// TransportHolder with a configurable type tag.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cepflow/cepflow/flow"
)

// Log records calls in order. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []string
}

// Add appends a formatted entry.
func (l *Log) Add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the recorded entries.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Reset clears the log.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Recorder is a WorkHolder that logs its lifecycle calls as "<label> <call>".
// Process copies input i to output i, adding Offset; outputs without a
// matching input are filled with Offset.
type Recorder struct {
	flow.Channels
	Label  string
	Offset float64
	Log    *Log
}

// NewRecorder creates a Recorder with inputs in0.. and outputs out0.., each
// of size samples.
func NewRecorder(label string, log *Log, ins, outs, size int) *Recorder {
	return &Recorder{
		Channels: flow.NewChannels(flow.Holders("in", ins, size), flow.Holders("out", outs, size)),
		Label:    label,
		Log:      log,
	}
}

func (r *Recorder) Kind() string { return "recorder" }

func (r *Recorder) Preprocess() error {
	r.Log.Add("%s preprocess", r.Label)
	return nil
}

func (r *Recorder) Process() error {
	r.Log.Add("%s process", r.Label)
	for o := 0; o < r.Outputs(); o++ {
		out := r.OutHolder(o)
		if o >= r.Inputs() {
			buf := make([]float64, len(out.Data()))
			for i := range buf {
				buf[i] = r.Offset
			}
			out.Set(out.Seq()+1, buf)
			continue
		}
		in := r.InHolder(o)
		buf := make([]float64, len(in.Data()))
		for i, v := range in.Data() {
			buf[i] = v + r.Offset
		}
		out.Set(in.Seq(), buf)
	}
	return nil
}

func (r *Recorder) Postprocess() error {
	r.Log.Add("%s postprocess", r.Label)
	return nil
}

func (r *Recorder) Dump(w io.Writer) {
	fmt.Fprintf(w, "recorder %s", r.Label)
}

// Profiler records span entries and exits as "enter <name>"/"leave <name>".
type Profiler struct {
	Log   *Log
	names []string
	ids   map[string]int
}

// NewProfiler creates a Profiler writing to log.
func NewProfiler(log *Log) *Profiler {
	return &Profiler{Log: log, ids: make(map[string]int)}
}

func (p *Profiler) DefineState(name, _ string) int {
	if id, ok := p.ids[name]; ok {
		return id
	}
	id := len(p.names)
	p.names = append(p.names, name)
	p.ids[name] = id
	return id
}

func (p *Profiler) EnterState(id int) { p.Log.Add("enter %s", p.names[id]) }
func (p *Profiler) LeaveState(id int) { p.Log.Add("leave %s", p.names[id]) }

// Holder is a TransportHolder with a configurable type tag that can connect
// any ranks and moves no data.
type Holder struct {
	Kind string
}

func (h *Holder) Type() string                                 { return h.Kind }
func (h *Holder) Clone() flow.TransportHolder                  { return &Holder{Kind: h.Kind} }
func (h *Holder) Read(context.Context, *flow.Transport) error  { return nil }
func (h *Holder) Write(context.Context, *flow.Transport) error { return nil }
func (h *Holder) ConnectionPossible(int, int) bool             { return true }
