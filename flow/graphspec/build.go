package graphspec

import (
	"fmt"

	"github.com/cepflow/cepflow/flow"
	"github.com/cepflow/cepflow/flow/th"
	"github.com/cepflow/cepflow/flow/work"
	"github.com/sirupsen/logrus"
)

type builder struct {
	ex          *th.Exchange
	defaultKind string
}

// Build constructs the graph described by g for the process configured by
// opts. Every node is placed while it is built. ex carries the exchange
// transports and may be nil when none are used. File sinks are opened only
// for channels produced on this process's rank; the configured optimization
// passes run last.
func Build(g *GraphSpec, ex *th.Exchange, opts ...flow.Option) (*flow.Simul, error) {
	root := flow.NewSimul(flow.NewBoundary(g.Ports.Inputs, g.Ports.Outputs), g.Name, opts...)
	rank, app := 0, 0
	if g.Rank != nil {
		rank = *g.Rank
	}
	if g.App != nil {
		app = *g.App
	}
	root.RunOnNode(rank, app)

	b := &builder{ex: ex, defaultKind: g.Transport}
	if err := b.fill(root, g.Steps, g.Connections, g.Arrays, rank, app); err != nil {
		return nil, fmt.Errorf("building %s: %w", g.Name, err)
	}
	for _, f := range g.Files {
		n, _, err := root.SplitName(true, f.Channel)
		if err != nil {
			return nil, fmt.Errorf("building %s: file %s: %w", g.Name, f.Channel, err)
		}
		if n.Rank() != root.Env().Rank {
			continue
		}
		if err := root.SetDHFile(f.Channel, f.Path); err != nil {
			return nil, fmt.Errorf("building %s: %w", g.Name, err)
		}
	}
	if g.Optimize.Shortcut {
		root.ShortcutConnections()
	}
	if g.Optimize.Simplify {
		root.SimplifyConnections()
	}
	logrus.Debugf("graphspec: built %s for rank %d", g.Name, root.Env().Rank)
	return root, nil
}

// CloseFiles closes every file sink opened by Build on root.
func (g *GraphSpec) CloseFiles(root *flow.Simul) error {
	for _, f := range g.Files {
		if err := root.SetDHFile(f.Channel, ""); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) proto(kind string) (flow.TransportHolder, error) {
	if kind == "" {
		kind = b.defaultKind
	}
	return th.New(kind, b.ex)
}

func (b *builder) fill(s *flow.Simul, steps []StepSpec, conns []ConnectionSpec, arrays []ArraySpec, rank, app int) error {
	for i := range steps {
		n, err := b.node(&steps[i], rank, app)
		if err != nil {
			return err
		}
		if err := s.AddStep(n); err != nil {
			return err
		}
	}
	for _, c := range conns {
		proto, err := b.proto(c.Transport)
		if err != nil {
			return err
		}
		if err := s.Connect(c.From, c.To, proto); err != nil {
			return err
		}
	}
	for _, a := range arrays {
		if err := b.array(s, a); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) node(st *StepSpec, rank, app int) (flow.Node, error) {
	if st.Rank != nil {
		rank = *st.Rank
	}
	if st.App != nil {
		app = *st.App
	}
	var opts []flow.Option
	if st.IndexSuffix {
		opts = append(opts, flow.WithIndexSuffix())
	}
	if st.Kind == SimulKind {
		sim := flow.NewSimul(flow.NewBoundary(st.Ports.Inputs, st.Ports.Outputs), st.Name, opts...)
		sim.RunOnNode(rank, app)
		if err := b.fill(sim, st.Steps, st.Connections, st.Arrays, rank, app); err != nil {
			return nil, fmt.Errorf("%s: %w", st.Name, err)
		}
		return sim, nil
	}
	w, err := work.New(st.Kind, work.Params{Inputs: st.Inputs, Outputs: st.Outputs, Size: st.Size, Values: st.Params})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", st.Name, err)
	}
	step := flow.NewStep(w, st.Name, opts...)
	step.RunOnNode(rank, app)
	return step, nil
}

func (b *builder) array(s *flow.Simul, a ArraySpec) error {
	steps := make([]flow.Node, len(a.Steps))
	for i, name := range a.Steps {
		n := s.Child(name)
		if n == nil {
			return fmt.Errorf("array: %w: %q in %q", flow.ErrUnknownStep, name, s.Name())
		}
		steps[i] = n
	}
	proto, err := b.proto(a.Transport)
	if err != nil {
		return err
	}
	if a.Direction == "input" {
		return s.ConnectInputToArray(steps, a.Skip, a.Offset, proto)
	}
	return s.ConnectOutputToArray(steps, a.Skip, a.Offset, proto)
}
