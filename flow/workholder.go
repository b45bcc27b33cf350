package flow

import (
	"fmt"
	"io"
)

// WorkHolder is the processing unit wrapped by a Step. It owns the ordered
// input and output DataHolders of the step and resolves channel names to
// indices.
type WorkHolder interface {
	Kind() string
	Inputs() int
	Outputs() int
	InHolder(i int) *DataHolder
	OutHolder(i int) *DataHolder
	InChannel(name string) (int, bool)
	OutChannel(name string) (int, bool)
	Preprocess() error
	Process() error
	Postprocess() error
	Dump(w io.Writer)
}

// Channels implements the channel tables of a WorkHolder. Concrete work
// holders embed it.
type Channels struct {
	ins    []*DataHolder
	outs   []*DataHolder
	inIdx  map[string]int
	outIdx map[string]int
}

// NewChannels builds channel tables over the given DataHolders.
// Panics on duplicate channel names within one table.
func NewChannels(ins, outs []*DataHolder) Channels {
	c := Channels{
		ins:    ins,
		outs:   outs,
		inIdx:  make(map[string]int, len(ins)),
		outIdx: make(map[string]int, len(outs)),
	}
	for i, dh := range ins {
		if _, dup := c.inIdx[dh.name]; dup {
			panic(fmt.Sprintf("NewChannels: duplicate input channel %q", dh.name))
		}
		c.inIdx[dh.name] = i
	}
	for i, dh := range outs {
		if _, dup := c.outIdx[dh.name]; dup {
			panic(fmt.Sprintf("NewChannels: duplicate output channel %q", dh.name))
		}
		c.outIdx[dh.name] = i
	}
	return c
}

// Holders creates n DataHolders named prefix0..prefix<n-1>.
func Holders(prefix string, n, size int) []*DataHolder {
	dhs := make([]*DataHolder, n)
	for i := range dhs {
		dhs[i] = NewDataHolder(fmt.Sprintf("%s%d", prefix, i), "float64", size)
	}
	return dhs
}

// Named creates one DataHolder per name.
func Named(size int, names ...string) []*DataHolder {
	dhs := make([]*DataHolder, len(names))
	for i, n := range names {
		dhs[i] = NewDataHolder(n, "float64", size)
	}
	return dhs
}

func (c *Channels) Inputs() int                 { return len(c.ins) }
func (c *Channels) Outputs() int                { return len(c.outs) }
func (c *Channels) InHolder(i int) *DataHolder  { return c.ins[i] }
func (c *Channels) OutHolder(i int) *DataHolder { return c.outs[i] }

func (c *Channels) InChannel(name string) (int, bool) {
	i, ok := c.inIdx[name]
	return i, ok
}

func (c *Channels) OutChannel(name string) (int, bool) {
	i, ok := c.outIdx[name]
	return i, ok
}

// Boundary is the WorkHolder of a Simul: it only carries the boundary
// channels and performs no processing.
type Boundary struct {
	Channels
}

// NewBoundary creates boundary channels with the given names.
func NewBoundary(ins, outs []string) *Boundary {
	return &Boundary{Channels: NewChannels(Named(0, ins...), Named(0, outs...))}
}

func (b *Boundary) Kind() string       { return "boundary" }
func (b *Boundary) Preprocess() error  { return nil }
func (b *Boundary) Process() error     { return nil }
func (b *Boundary) Postprocess() error { return nil }

func (b *Boundary) Dump(w io.Writer) {
	fmt.Fprintf(w, "boundary in=%d out=%d", b.Inputs(), b.Outputs())
}
