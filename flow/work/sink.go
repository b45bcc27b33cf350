package work

import (
	"fmt"
	"io"

	"github.com/cepflow/cepflow/flow"
	"github.com/sirupsen/logrus"
)

// Sink consumes its inputs and keeps running statistics.
type Sink struct {
	flow.Channels
	cycles int64
	sum    float64
	last   [][]float64
}

// NewSink creates a Sink with inputs in0..in<inputs-1>.
func NewSink(inputs, size int) *Sink {
	return &Sink{Channels: flow.NewChannels(flow.Holders("in", inputs, size), nil)}
}

func (s *Sink) Kind() string { return "sink" }

func (s *Sink) Preprocess() error {
	s.cycles, s.sum = 0, 0
	s.last = make([][]float64, s.Inputs())
	return nil
}

func (s *Sink) Process() error {
	if s.last == nil {
		s.last = make([][]float64, s.Inputs())
	}
	for c := 0; c < s.Inputs(); c++ {
		in := s.InHolder(c)
		s.last[c] = append(s.last[c][:0], in.Data()...)
		for _, v := range in.Data() {
			s.sum += v
		}
		logrus.Debugf("sink %s: seq=%d %v", in.Name(), in.Seq(), in.Data())
	}
	s.cycles++
	return nil
}

func (s *Sink) Postprocess() error {
	logrus.Infof("sink: %d cycles, sum=%g", s.cycles, s.sum)
	return nil
}

// Cycles returns the number of processed cycles.
func (s *Sink) Cycles() int64 { return s.cycles }

// Sum returns the sum of every sample consumed.
func (s *Sink) Sum() float64 { return s.sum }

// Last returns the payload most recently read on input c.
func (s *Sink) Last(c int) []float64 {
	if c >= len(s.last) {
		return nil
	}
	return s.last[c]
}

func (s *Sink) Dump(w io.Writer) {
	fmt.Fprintf(w, "sink cycles=%d sum=%g", s.cycles, s.sum)
}
