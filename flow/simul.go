package flow

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Simul is a composite graph node: a Step whose WorkHolder only carries the
// boundary channels, plus an ordered list of child nodes.
//
// The Simul exclusively owns its children. A child keeps a non-owning back
// reference to its parent, set once by AddStep.
//
// Thread-safety: NOT thread-safe. Construction and execution happen on one
// goroutine; only the VirtualMachine may be triggered concurrently.
type Simul struct {
	Step

	children []Node
	byName   map[string]Node
	highest  bool
	vm       *VirtualMachine
	ctl      Controller
	env      Env
	events   int64
}

// NewSimul creates a highest-level Simul with its own VirtualMachine.
// Panics if work is nil.
func NewSimul(work WorkHolder, name string, opts ...Option) *Simul {
	if work == nil {
		panic("NewSimul: nil WorkHolder")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Simul{
		byName:  make(map[string]Node),
		highest: true,
		vm:      NewVirtualMachine(),
		env:     o.env,
	}
	s.Step.init(work, name, o)
	s.Step.self = s
	return s
}

// IsHighestLevel reports whether s is a root that is not itself a child.
func (s *Simul) IsHighestLevel() bool { return s.highest }

// Steps returns the children in insertion order.
func (s *Simul) Steps() []Node { return s.children }

// Child returns the child registered under name, or nil.
func (s *Simul) Child(name string) Node { return s.byName[name] }

// VM returns this Simul's VirtualMachine. Execution of a graph is gated by the
// VirtualMachine of its highest-level Simul.
func (s *Simul) VM() *VirtualMachine { return s.vm }

// State returns the state of the VirtualMachine gating this graph.
func (s *Simul) State() State {
	if r := s.root(); r != nil {
		return r.vm.State()
	}
	return s.vm.State()
}

// Env returns the execution environment.
func (s *Simul) Env() Env { return s.env }

// EventCount returns how many cycles the highest-level Simul has started.
func (s *Simul) EventCount() int64 { return s.events }

// Controller returns the bound controller, or nil.
func (s *Simul) Controller() Controller { return s.ctl }

// BindController attaches c to this Simul and announces every boundary
// channel to it. Inputs are announced as targets, outputs as sources; the id
// is the rank of this process.
func (s *Simul) BindController(c Controller) {
	s.ctl = c
	for i := 0; i < s.work.Inputs(); i++ {
		c.Connect(false, i, s.env.Rank)
	}
	for i := 0; i < s.work.Outputs(); i++ {
		c.Connect(true, i, s.env.Rank)
	}
}

// AddStep takes ownership of n and appends it as the next child.
func (s *Simul) AddStep(n Node) error {
	st := n.node()
	if st.parent != nil {
		return fmt.Errorf("%w: %q is already a child of %q", ErrDuplicateParent, st.name, st.parent.name)
	}
	if st == &s.Step {
		return fmt.Errorf("%w: %q cannot contain itself", ErrDuplicateParent, s.name)
	}
	for p := s.parent; p != nil; p = p.parent {
		if st == &p.Step {
			return fmt.Errorf("%w: %q is an ancestor of %q", ErrCycle, st.name, s.name)
		}
	}
	seq := len(s.children)
	name := st.name
	if name == "" {
		name = fmt.Sprintf("step%d", seq)
	}
	if st.suffix {
		name = fmt.Sprintf("%s_%d", name, seq)
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q contains '.'", ErrInvalidName, name)
	}
	if _, dup := s.byName[name]; dup {
		return fmt.Errorf("%w: %q in %q", ErrDuplicateName, name, s.name)
	}
	st.name = name
	st.seq = seq
	st.parent = s
	if child, ok := n.(*Simul); ok {
		child.highest = false
	}
	s.children = append(s.children, n)
	s.byName[name] = n
	logrus.Debugf("Simul %s: added %s as child %d", s.name, name, seq)
	return nil
}

// RunOnNode places s and, recursively, every child on rank.
func (s *Simul) RunOnNode(rank, appID int) {
	s.Step.RunOnNode(rank, appID)
	for _, c := range s.children {
		c.RunOnNode(rank, appID)
	}
}

func (s *Simul) Preprocess() error {
	if err := s.Step.Preprocess(); err != nil {
		return err
	}
	for _, c := range s.children {
		if err := c.Preprocess(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simul) Postprocess() error {
	if err := s.Step.Postprocess(); err != nil {
		return err
	}
	for _, c := range s.children {
		if err := c.Postprocess(); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes s and its whole subtree in pre-order.
func (s *Simul) Dump(w io.Writer) {
	s.dumpSelf(w, "simul")
	for _, c := range s.children {
		c.Dump(w)
	}
}
