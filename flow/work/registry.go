package work

import (
	"fmt"

	"github.com/cepflow/cepflow/flow"
)

// Params configures a WorkHolder built by New.
type Params struct {
	Inputs  int
	Outputs int
	Size    int
	Values  map[string]float64
}

func (p Params) value(key string, def float64) float64 {
	if v, ok := p.Values[key]; ok {
		return v
	}
	return def
}

// ValidKinds is the set of recognized work kind names.
var ValidKinds = map[string]bool{"source": true, "scale": true, "add": true, "sink": true}

// New builds a WorkHolder by kind name.
//   - source: Outputs channels; values start (0), step (1)
//   - scale: Inputs channel pairs; values factor (1), bias (0)
//   - add: Inputs channels summed into one output
//   - sink: Inputs channels
func New(kind string, p Params) (flow.WorkHolder, error) {
	if p.Size <= 0 {
		p.Size = 1
	}
	switch kind {
	case "source":
		return NewSource(max(p.Outputs, 1), p.Size, p.value("start", 0), p.value("step", 1)), nil
	case "scale":
		return NewScale(max(p.Inputs, 1), p.Size, p.value("factor", 1), p.value("bias", 0)), nil
	case "add":
		return NewAdd(max(p.Inputs, 1), p.Size), nil
	case "sink":
		return NewSink(max(p.Inputs, 1), p.Size), nil
	default:
		return nil, fmt.Errorf("unknown work kind %q", kind)
	}
}
