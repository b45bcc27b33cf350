package flow

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// SplitName resolves a wiring name of the form "step.channel".
//
// A leading "." denotes s itself. A missing channel part yields channel -1,
// meaning every channel of the step. A source name resolves against the
// step's output table and a target name against its input table; for s
// itself the tables swap, since data enters a Simul through its inputs and
// leaves through its outputs.
func (s *Simul) SplitName(isSource bool, name string) (Node, int, error) {
	var (
		n      Node
		chName string
	)
	dot := strings.IndexByte(name, '.')
	switch {
	case dot == 0:
		n = s
		chName = name[1:]
	default:
		stepName := name
		if dot > 0 {
			stepName, chName = name[:dot], name[dot+1:]
		}
		child, ok := s.byName[stepName]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q in %q", ErrUnknownStep, stepName, s.name)
		}
		n = child
	}
	if chName == "" {
		return n, -1, nil
	}
	var (
		idx int
		ok  bool
	)
	if s.usesInputs(isSource, n) {
		idx, ok = n.Work().InChannel(chName)
	} else {
		idx, ok = n.Work().OutChannel(chName)
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q of step %q", ErrUnknownChannel, chName, n.Name())
	}
	return n, idx, nil
}

func (s *Simul) usesInputs(isSource bool, n Node) bool {
	return isSource == (n.node() == &s.Step)
}

// holderFor returns the DataHolder selected by a resolved name.
func (s *Simul) holderFor(isSource bool, n Node, ch int) *DataHolder {
	if s.usesInputs(isSource, n) {
		return n.Work().InHolder(ch)
	}
	return n.Work().OutHolder(ch)
}

// Connect wires source to target. Names follow the SplitName grammar.
// When neither name selects a channel, every channel of the implicated steps
// is wired pairwise; when only one does, the other side uses channel 0.
func (s *Simul) Connect(source, target string, proto TransportHolder) error {
	src, srcCh, err := s.SplitName(true, source)
	if err != nil {
		return fmt.Errorf("connect %s -> %s: %w", source, target, err)
	}
	dst, dstCh, err := s.SplitName(false, target)
	if err != nil {
		return fmt.Errorf("connect %s -> %s: %w", source, target, err)
	}
	if src.node() == dst.node() {
		return fmt.Errorf("connect %s -> %s: %w", source, target, ErrSameStep)
	}
	bulk := srcCh < 0 && dstCh < 0
	srcCh, dstCh = max(srcCh, 0), max(dstCh, 0)
	this := &s.Step
	switch {
	case src.node() == this:
		if bulk {
			err = s.ConnectThisInIn(dst, 0, 0, 0, proto)
		} else {
			err = s.linkOne(src, srcCh, dst, dstCh, proto)
		}
	case dst.node() == this:
		if bulk {
			err = s.ConnectThisOutOut(src, 0, 0, 0, proto)
		} else {
			err = s.linkOne(src, srcCh, dst, dstCh, proto)
		}
	default:
		nr := 1
		if bulk {
			nr = -1
		}
		err = dst.node().ConnectFrom(src, srcCh, dstCh, nr, proto)
	}
	if err != nil {
		return fmt.Errorf("connect %s -> %s: %w", source, target, err)
	}
	logrus.Debugf("Simul %s: connected %s -> %s via %s", s.name, source, target, proto.Type())
	return nil
}

// linkOne wires a single channel across the boundary of s.
func (s *Simul) linkOne(src Node, srcCh int, dst Node, dstCh int, proto TransportHolder) error {
	if srcCh >= s.channelCount(true, src) || dstCh >= s.channelCount(false, dst) {
		return fmt.Errorf("%w: %s[%d] -> %s[%d]", ErrCapacity, src.Name(), srcCh, dst.Name(), dstCh)
	}
	return linkAll([]hop{{s.holderFor(true, src, srcCh), s.holderFor(false, dst, dstCh)}}, proto)
}

func (s *Simul) channelCount(isSource bool, n Node) int {
	if s.usesInputs(isSource, n) {
		return n.Work().Inputs()
	}
	return n.Work().Outputs()
}

// ConnectThisInIn wires boundary inputs of s to inputs of step, pairwise.
// Up to min(step inputs, s inputs) channels are wired; both sides start at
// their offset and advance by 1+skip per channel. Wiring stops at the first
// index past either side.
func (s *Simul) ConnectThisInIn(step Node, thisOffset, thatOffset, skip int, proto TransportHolder) error {
	that := step.Work()
	n, err := s.strided(that.Inputs(), s.work.Inputs(), thisOffset, thatOffset, skip, step.Name())
	if err != nil {
		return err
	}
	hops := make([]hop, n)
	for i := range hops {
		hops[i] = hop{s.work.InHolder(thisOffset + i*(1+skip)), that.InHolder(thatOffset + i*(1+skip))}
	}
	return linkAll(hops, proto)
}

// ConnectThisOutOut wires outputs of step to boundary outputs of s, pairwise,
// with the same striding rules as ConnectThisInIn.
func (s *Simul) ConnectThisOutOut(step Node, thisOffset, thatOffset, skip int, proto TransportHolder) error {
	that := step.Work()
	n, err := s.strided(that.Outputs(), s.work.Outputs(), thisOffset, thatOffset, skip, step.Name())
	if err != nil {
		return err
	}
	hops := make([]hop, n)
	for i := range hops {
		hops[i] = hop{that.OutHolder(thatOffset + i*(1+skip)), s.work.OutHolder(thisOffset + i*(1+skip))}
	}
	return linkAll(hops, proto)
}

// strided returns how many channels a strided pairwise wiring covers.
func (s *Simul) strided(thatCount, thisCount, thisOffset, thatOffset, skip int, stepName string) (int, error) {
	if thisOffset < 0 || thatOffset < 0 || skip < 0 ||
		thisOffset >= thisCount || thatOffset >= thatCount {
		return 0, fmt.Errorf("%w: %s offsets %d/%d skip %d outside %d/%d channels",
			ErrCapacity, stepName, thisOffset, thatOffset, skip, thisCount, thatCount)
	}
	stride := 1 + skip
	n := min(thatCount, thisCount)
	n = min(n, (thisCount-thisOffset+stride-1)/stride, (thatCount-thatOffset+stride-1)/stride)
	return n, nil
}

// ConnectInputToArray feeds the inputs of every step in steps, in order, from
// consecutive boundary inputs of s starting at offset. skip boundary channels
// are left unwired between two steps.
func (s *Simul) ConnectInputToArray(steps []Node, skip, offset int, proto TransportHolder) error {
	need := offset
	for i, st := range steps {
		if st.Parent() != s {
			return fmt.Errorf("%w: %q is not a child of %q", ErrUnknownStep, st.Name(), s.name)
		}
		if i > 0 {
			need += skip
		}
		need += st.Work().Inputs()
	}
	if offset < 0 || skip < 0 || need > s.work.Inputs() {
		return fmt.Errorf("%w: %s has %d inputs, array needs %d", ErrCapacity, s.name, s.work.Inputs(), need)
	}
	var hops []hop
	at := offset
	for _, st := range steps {
		for j := 0; j < st.Work().Inputs(); j++ {
			hops = append(hops, hop{s.work.InHolder(at + j), st.Work().InHolder(j)})
		}
		at += st.Work().Inputs() + skip
	}
	return linkAll(hops, proto)
}

// ConnectOutputToArray drains the outputs of every step in steps, in order,
// into consecutive boundary outputs of s starting at offset.
func (s *Simul) ConnectOutputToArray(steps []Node, skip, offset int, proto TransportHolder) error {
	need := offset
	for i, st := range steps {
		if st.Parent() != s {
			return fmt.Errorf("%w: %q is not a child of %q", ErrUnknownStep, st.Name(), s.name)
		}
		if i > 0 {
			need += skip
		}
		need += st.Work().Outputs()
	}
	if offset < 0 || skip < 0 || need > s.work.Outputs() {
		return fmt.Errorf("%w: %s has %d outputs, array needs %d", ErrCapacity, s.name, s.work.Outputs(), need)
	}
	var hops []hop
	at := offset
	for _, st := range steps {
		for j := 0; j < st.Work().Outputs(); j++ {
			hops = append(hops, hop{st.Work().OutHolder(j), s.work.OutHolder(at + j)})
		}
		at += st.Work().Outputs() + skip
	}
	return linkAll(hops, proto)
}

// SetDHFile redirects the sink of the named channel to fileName; an empty
// fileName closes the redirection. Without a channel part every output of
// the step is redirected, each to fileName suffixed with the channel name.
func (s *Simul) SetDHFile(channelName, fileName string) error {
	n, ch, err := s.SplitName(true, channelName)
	if err != nil {
		return fmt.Errorf("set file %s: %w", channelName, err)
	}
	if ch >= 0 {
		return s.holderFor(true, n, ch).SetFile(fileName)
	}
	for i := 0; i < s.channelCount(true, n); i++ {
		dh := s.holderFor(true, n, i)
		name := fileName
		if name != "" {
			name = fileName + "." + dh.name
		}
		if err := dh.SetFile(name); err != nil {
			return err
		}
	}
	return nil
}
