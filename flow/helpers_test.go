package flow

import (
	"context"
	"fmt"
	"io"
)

// leafWork is a minimal WorkHolder for internal tests.
type leafWork struct {
	Channels
	calls int
}

func newLeaf(ins, outs int) *leafWork {
	return &leafWork{Channels: NewChannels(Holders("in", ins, 1), Holders("out", outs, 1))}
}

func (l *leafWork) Kind() string       { return "leaf" }
func (l *leafWork) Preprocess() error  { return nil }
func (l *leafWork) Process() error     { l.calls++; return nil }
func (l *leafWork) Postprocess() error { return nil }
func (l *leafWork) Dump(w io.Writer)   { fmt.Fprintf(w, "leaf calls=%d", l.calls) }

// stubHolder is a TransportHolder with an arbitrary type tag.
type stubHolder struct{ typ string }

func (h *stubHolder) Type() string                            { return h.typ }
func (h *stubHolder) Clone() TransportHolder                  { return &stubHolder{typ: h.typ} }
func (h *stubHolder) Read(context.Context, *Transport) error  { return nil }
func (h *stubHolder) Write(context.Context, *Transport) error { return nil }
func (h *stubHolder) ConnectionPossible(int, int) bool        { return true }

func newTestSimul(name string, ins, outs []string) *Simul {
	return NewSimul(NewBoundary(ins, outs), name)
}
