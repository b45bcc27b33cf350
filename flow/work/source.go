package work

import (
	"fmt"
	"io"

	"github.com/cepflow/cepflow/flow"
)

// Source generates a ramp on every output: sample i of cycle n is
// Start + Step*(n*size + i). The cycle number is the payload sequence.
type Source struct {
	flow.Channels
	Start float64
	Step  float64
	cycle int64
}

// NewSource creates a Source with outputs out0..out<outputs-1>.
func NewSource(outputs, size int, start, step float64) *Source {
	return &Source{
		Channels: flow.NewChannels(nil, flow.Holders("out", outputs, size)),
		Start:    start,
		Step:     step,
	}
}

func (s *Source) Kind() string { return "source" }

func (s *Source) Preprocess() error {
	s.cycle = 0
	return nil
}

func (s *Source) Process() error {
	for o := 0; o < s.Outputs(); o++ {
		dh := s.OutHolder(o)
		data := dh.Data()
		for i := range data {
			data[i] = s.Start + s.Step*float64(int(s.cycle)*len(data)+i)
		}
		dh.Set(s.cycle, data)
	}
	s.cycle++
	return nil
}

func (s *Source) Postprocess() error { return nil }

func (s *Source) Dump(w io.Writer) {
	fmt.Fprintf(w, "source start=%g step=%g cycle=%d", s.Start, s.Step, s.cycle)
}
