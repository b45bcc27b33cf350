package work

import (
	"fmt"
	"io"

	"github.com/cepflow/cepflow/flow"
)

// Scale applies out[c] = Factor*in[c] + Bias on each channel pair.
type Scale struct {
	flow.Channels
	Factor float64
	Bias   float64
}

// NewScale creates a Scale with channels in0../out0.. pairs.
func NewScale(channels, size int, factor, bias float64) *Scale {
	return &Scale{
		Channels: flow.NewChannels(flow.Holders("in", channels, size), flow.Holders("out", channels, size)),
		Factor:   factor,
		Bias:     bias,
	}
}

func (s *Scale) Kind() string       { return "scale" }
func (s *Scale) Preprocess() error  { return nil }
func (s *Scale) Postprocess() error { return nil }

func (s *Scale) Process() error {
	for c := 0; c < s.Inputs(); c++ {
		in, out := s.InHolder(c), s.OutHolder(c)
		buf := make([]float64, len(in.Data()))
		for i, v := range in.Data() {
			buf[i] = s.Factor*v + s.Bias
		}
		out.Set(in.Seq(), buf)
	}
	return nil
}

func (s *Scale) Dump(w io.Writer) {
	fmt.Fprintf(w, "scale factor=%g bias=%g", s.Factor, s.Bias)
}
