package flow

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Node is a graph vertex: either a leaf *Step or a composite *Simul.
// The set of implementations is closed.
type Node interface {
	Name() string
	Seq() int
	Parent() *Simul
	Rank() int
	AppID() int
	Work() WorkHolder
	RunOnNode(rank, appID int)
	Preprocess() error
	Process(ctx context.Context) error
	Postprocess() error
	Dump(w io.Writer)
	SimplifyConnections()
	OptimizeConnectionsWith(proto TransportHolder)

	node() *Step
	check(w io.Writer, parent *Simul) bool
}

// Step is a leaf graph node wrapping one WorkHolder.
//
// Thread-safety: NOT thread-safe. A graph is built and executed by one
// goroutine.
type Step struct {
	name   string
	suffix bool
	seq    int
	parent *Simul
	rank   int
	appID  int
	work   WorkHolder
	self   Node

	spans    [3]int // read, process, write profiler states
	spansSet bool
}

// NewStep creates an unparented leaf step. Panics if work is nil.
func NewStep(work WorkHolder, name string, opts ...Option) *Step {
	if work == nil {
		panic("NewStep: nil WorkHolder")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Step{}
	s.init(work, name, o)
	s.self = s
	return s
}

func (s *Step) init(work WorkHolder, name string, o options) {
	s.name = name
	s.suffix = o.indexSuffix
	s.seq = -1
	s.rank = NoRank
	s.work = work
}

func (s *Step) node() *Step      { return s }
func (s *Step) Name() string     { return s.name }
func (s *Step) Seq() int         { return s.seq }
func (s *Step) Parent() *Simul   { return s.parent }
func (s *Step) Rank() int        { return s.rank }
func (s *Step) AppID() int       { return s.appID }
func (s *Step) Work() WorkHolder { return s.work }

// InTransport returns the Transport of input channel i.
func (s *Step) InTransport(i int) *Transport { return s.work.InHolder(i).tp }

// OutTransport returns the Transport of output channel i.
func (s *Step) OutTransport(i int) *Transport { return s.work.OutHolder(i).tp }

// Path returns the dotted path from the highest-level Simul to this step.
func (s *Step) Path() string {
	parts := []string{s.name}
	for p := s.parent; p != nil; p = p.parent {
		parts = append(parts, p.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func (s *Step) depth() int {
	d := 0
	for p := s.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// root returns the highest-level Simul above (or equal to) this node, or nil
// for an unparented leaf.
func (s *Step) root() *Simul {
	n := s
	for n.parent != nil {
		n = &n.parent.Step
	}
	sim, _ := n.self.(*Simul)
	return sim
}

// RunOnNode assigns the step and all its channel transports to rank.
func (s *Step) RunOnNode(rank, appID int) {
	s.rank = rank
	s.appID = appID
	for i := 0; i < s.work.Inputs(); i++ {
		s.work.InHolder(i).tp.rank = rank
	}
	for i := 0; i < s.work.Outputs(); i++ {
		s.work.OutHolder(i).tp.rank = rank
	}
	logrus.Debugf("Step %s: placed on rank %d app %d", s.name, rank, appID)
}

// onRightNode reports whether this process executes the node.
func (s *Step) onRightNode(env Env) bool {
	if s.rank == NoRank {
		return false
	}
	return s.rank == env.Rank && env.selects(s.appID)
}

func (s *Step) env() (Env, *VirtualMachine) {
	r := s.root()
	if r == nil {
		return Env{Rank: NoRank}, nil
	}
	return r.env, r.vm
}

// admit blocks on the owning VirtualMachine.
func (s *Step) admit(ctx context.Context) (Env, error) {
	env, vm := s.env()
	if vm == nil {
		return env, nil
	}
	if err := vm.WaitRunning(ctx); err != nil {
		return env, fmt.Errorf("%s: %w", s.name, err)
	}
	return env, nil
}

func (s *Step) spanIDs(p Profiler) (read, process, write int) {
	if !s.spansSet {
		s.spans[0] = p.DefineState(s.name+" read", "green")
		s.spans[1] = p.DefineState(s.name+" process", "blue")
		s.spans[2] = p.DefineState(s.name+" write", "red")
		s.spansSet = true
	}
	return s.spans[0], s.spans[1], s.spans[2]
}

// ConnectFrom wires nr consecutive outputs of src, starting at srcCh, to this
// step's inputs starting at dstCh. A negative nr wires as many channels as
// both sides can take.
func (s *Step) ConnectFrom(src Node, srcCh, dstCh, nr int, proto TransportHolder) error {
	from := src.node()
	if from == s {
		return fmt.Errorf("%w: %s", ErrSameStep, s.name)
	}
	avail := min(from.work.Outputs()-srcCh, s.work.Inputs()-dstCh)
	if nr < 0 {
		nr = avail
	}
	if srcCh < 0 || dstCh < 0 || nr > avail || nr <= 0 {
		return fmt.Errorf("%w: %s[%d..] -> %s[%d..] needs %d channels, %d available",
			ErrCapacity, from.name, srcCh, s.name, dstCh, nr, max(avail, 0))
	}
	hops := make([]hop, nr)
	for i := range hops {
		hops[i] = hop{from.work.OutHolder(srcCh + i), s.work.InHolder(dstCh + i)}
	}
	if err := linkAll(hops, proto); err != nil {
		return err
	}
	logrus.Debugf("Step %s: connected %d channel(s) from %s via %s", s.name, nr, from.name, proto.Type())
	return nil
}

func (s *Step) Preprocess() error {
	return s.work.Preprocess()
}

func (s *Step) Postprocess() error {
	return s.work.Postprocess()
}

// Process runs one execution cycle of the leaf: read inputs, process, write
// outputs. A step not assigned to this process only passes the admission gate.
func (s *Step) Process(ctx context.Context) error {
	env, err := s.admit(ctx)
	if err != nil {
		return err
	}
	if !s.onRightNode(env) {
		return nil
	}
	prof := env.profiler()
	readID, procID, writeID := s.spanIDs(prof)
	for i := 0; i < s.work.Inputs(); i++ {
		prof.EnterState(readID)
		err := s.work.InHolder(i).Read(ctx)
		prof.LeaveState(readID)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	prof.EnterState(procID)
	err = s.work.Process()
	prof.LeaveState(procID)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	for i := 0; i < s.work.Outputs(); i++ {
		prof.EnterState(writeID)
		err := s.work.OutHolder(i).Write(ctx)
		prof.LeaveState(writeID)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Dump writes one line describing the step and its channel transports.
func (s *Step) Dump(w io.Writer) {
	s.dumpSelf(w, "step")
}

func (s *Step) dumpSelf(w io.Writer, kind string) {
	indent := strings.Repeat("  ", s.depth())
	fmt.Fprintf(w, "%s%s %s seq=%d rank=%d app=%d ", indent, kind, s.name, s.seq, s.rank, s.appID)
	s.work.Dump(w)
	fmt.Fprintln(w)
	for i := 0; i < s.work.Inputs(); i++ {
		dumpTransport(w, indent, "in", s.work.InHolder(i))
	}
	for i := 0; i < s.work.Outputs(); i++ {
		dumpTransport(w, indent, "out", s.work.OutHolder(i))
	}
}

func dumpTransport(w io.Writer, indent, dir string, dh *DataHolder) {
	tp := dh.tp
	peer := func(p *DataHolder) string {
		if p == nil {
			return "-"
		}
		return p.name
	}
	typ := tp.Type()
	if typ == "" {
		typ = "-"
	}
	fmt.Fprintf(w, "%s  %s %s: %s src=%s dst=%s rtag=%d wtag=%d\n",
		indent, dir, dh.name, typ, peer(tp.source), peer(tp.target), tp.readTag, tp.writeTag)
}

// SimplifyConnections switches every inbound hop between equal ranks to the
// in-memory mechanism.
func (s *Step) SimplifyConnections() {
	s.optimizeOwn(newMemoryHolder())
}

// OptimizeConnectionsWith switches every inbound hop between equal ranks to
// a clone of proto.
func (s *Step) OptimizeConnectionsWith(proto TransportHolder) {
	s.optimizeOwn(proto)
}

func (s *Step) optimizeOwn(proto TransportHolder) {
	for i := 0; i < s.work.Inputs(); i++ {
		optimizeHop(s.work.InHolder(i), proto)
	}
}

// optimizeHop retargets the hop feeding dst when both ends share a rank.
func optimizeHop(dst *DataHolder, proto TransportHolder) {
	src := dst.tp.source
	if src == nil || src.tp.rank != dst.tp.rank {
		return
	}
	if !proto.ConnectionPossible(src.tp.rank, dst.tp.rank) {
		return
	}
	if src.tp.Type() != proto.Type() {
		logrus.Debugf("optimize: %s -> %s now %s (was %s)", src.name, dst.name, proto.Type(), src.tp.Type())
	}
	setHop(src, dst, proto.Clone())
}

func (s *Step) check(w io.Writer, parent *Simul) bool {
	ok := true
	for i := 0; i < s.work.Inputs(); i++ {
		dh := s.work.InHolder(i)
		if dh.tp.source == nil {
			fmt.Fprintf(w, "ERROR %s: input %s is not connected\n", s.Path(), dh.name)
			ok = false
			continue
		}
		ok = checkHop(w, s.Path(), dh) && ok
	}
	for i := 0; i < s.work.Outputs(); i++ {
		dh := s.work.OutHolder(i)
		if dh.tp.target == nil {
			fmt.Fprintf(w, "WARN  %s: output %s is not connected\n", s.Path(), dh.name)
			continue
		}
		ok = checkConsumer(w, s.Path(), dh) && ok
	}
	return ok
}

// checkConsumer reports a producer whose consumer reads from someone else.
func checkConsumer(w io.Writer, where string, src *DataHolder) bool {
	dst := src.tp.target
	if dst.tp.source != src {
		fmt.Fprintf(w, "ERROR %s: %s -> %s: consumer reads from another producer\n", where, src.name, dst.name)
		return false
	}
	return true
}

// checkHop validates the hop feeding dst.
func checkHop(w io.Writer, where string, dst *DataHolder) bool {
	src := dst.tp.source
	h := src.tp.holder
	if h == nil {
		fmt.Fprintf(w, "ERROR %s: %s -> %s has no transport mechanism\n", where, src.name, dst.name)
		return false
	}
	if !h.ConnectionPossible(src.tp.rank, dst.tp.rank) {
		fmt.Fprintf(w, "ERROR %s: %s transport cannot connect %s (rank %d) -> %s (rank %d)\n",
			where, h.Type(), src.name, src.tp.rank, dst.name, dst.tp.rank)
		return false
	}
	if dst.tp.target == nil && dst.tp.Type() != h.Type() {
		fmt.Fprintf(w, "ERROR %s: %s -> %s mechanism mismatch (%s vs %s)\n",
			where, src.name, dst.name, h.Type(), dst.tp.Type())
		return false
	}
	if dst.tp.readTag != src.tp.writeTag {
		fmt.Fprintf(w, "ERROR %s: %s -> %s tag mismatch (write %d, read %d)\n",
			where, src.name, dst.name, src.tp.writeTag, dst.tp.readTag)
		return false
	}
	return true
}
