package work

import (
	"fmt"
	"io"

	"github.com/cepflow/cepflow/flow"
)

// Add sums all inputs sample-wise into its single output. Inputs of unequal
// length are an error.
type Add struct {
	flow.Channels
}

// NewAdd creates an Add with inputs in0..in<inputs-1> and output out0.
func NewAdd(inputs, size int) *Add {
	return &Add{Channels: flow.NewChannels(flow.Holders("in", inputs, size), flow.Holders("out", 1, size))}
}

func (a *Add) Kind() string       { return "add" }
func (a *Add) Preprocess() error  { return nil }
func (a *Add) Postprocess() error { return nil }

func (a *Add) Process() error {
	if a.Inputs() == 0 {
		return nil
	}
	first := a.InHolder(0)
	sum := append([]float64(nil), first.Data()...)
	seq := first.Seq()
	for c := 1; c < a.Inputs(); c++ {
		in := a.InHolder(c)
		if len(in.Data()) != len(sum) {
			return fmt.Errorf("add: input %s has %d samples, want %d", in.Name(), len(in.Data()), len(sum))
		}
		for i, v := range in.Data() {
			sum[i] += v
		}
		seq = max(seq, in.Seq())
	}
	a.OutHolder(0).Set(seq, sum)
	return nil
}

func (a *Add) Dump(w io.Writer) {
	fmt.Fprintf(w, "add inputs=%d", a.Inputs())
}
