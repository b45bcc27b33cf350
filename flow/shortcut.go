package flow

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ShortcutConnections removes forwarding hops through composite boundaries.
// It visits the boundary inputs of s, then its boundary outputs, then every
// child Simul in order.
func (s *Simul) ShortcutConnections() {
	for i := 0; i < s.work.Inputs(); i++ {
		s.doShortcut(s.work.InHolder(i).tp)
	}
	for i := 0; i < s.work.Outputs(); i++ {
		s.doShortcut(s.work.OutHolder(i).tp)
	}
	for _, c := range s.children {
		if sim, ok := c.(*Simul); ok {
			sim.ShortcutConnections()
		}
	}
}

// doShortcut fuses the chain src -> boundary -> dst into src -> dst when the
// two hops can share one mechanism. It reports whether a fusion happened.
//
// Hops on the same rank are both forced to the in-memory mechanism. On
// different ranks, equal mechanisms fuse as-is, and a single in-memory hop is
// upgraded to the other hop's mechanism. Two distinct non-memory mechanisms
// cannot fuse.
func (s *Simul) doShortcut(tp *Transport) bool {
	src, dst := tp.source, tp.target
	if src == nil || dst == nil {
		return false
	}
	up, down := src.tp, dst.tp
	upH, downH := up.holder, tp.holder
	var h TransportHolder
	switch {
	case up.rank == down.rank:
		h = newMemoryHolder()
	case upH.Type() == downH.Type():
		h = upH
	case upH.Type() == MemoryType:
		h = downH.Clone()
	case downH.Type() == MemoryType:
		h = upH.Clone()
	default:
		logrus.Debugf("Simul %s: cannot shortcut %s -> %s -> %s (%s vs %s)",
			s.name, src.name, tp.owner.name, dst.name, upH.Type(), downH.Type())
		return false
	}
	setHop(src, dst, h)
	tp.holder = h.Clone()
	up.target = dst
	down.source = src
	up.writeTag = down.readTag
	tp.neutralize()
	logrus.Debugf("Simul %s: shortcut %s -> %s via %s, bypassing %s",
		s.name, src.name, dst.name, h.Type(), tp.owner.name)
	return true
}

// SimplifyConnections switches every hop between equal ranks in the subtree
// to the in-memory mechanism.
func (s *Simul) SimplifyConnections() {
	s.OptimizeConnectionsWith(newMemoryHolder())
}

// OptimizeConnectionsWith switches every hop between equal ranks in the
// subtree to proto, where proto can carry it. The boundary of s is handled
// first, then every child in order.
func (s *Simul) OptimizeConnectionsWith(proto TransportHolder) {
	for i := 0; i < s.work.Inputs(); i++ {
		optimizeHop(s.work.InHolder(i), proto)
	}
	for i := 0; i < s.work.Outputs(); i++ {
		optimizeHop(s.work.OutHolder(i), proto)
	}
	for _, c := range s.children {
		c.OptimizeConnectionsWith(proto)
	}
}

// CheckConnections validates the wiring of the whole subtree and writes one
// diagnostic line per problem to w. Unconnected boundary channels of the
// highest-level Simul are the graph's external ports and are accepted.
func (s *Simul) CheckConnections(w io.Writer) bool {
	return s.check(w, s.parent)
}

func (s *Simul) check(w io.Writer, parent *Simul) bool {
	ok := s.checkBoundary(w, parent)
	for _, c := range s.children {
		ok = c.check(w, s) && ok
	}
	if !ok {
		logrus.Warnf("Simul %s: connection check failed", s.name)
	}
	return ok
}

func (s *Simul) checkBoundary(w io.Writer, parent *Simul) bool {
	ok := true
	external := parent == nil
	for i := 0; i < s.work.Inputs(); i++ {
		ok = s.checkPort(w, "input", s.work.InHolder(i), external) && ok
	}
	for i := 0; i < s.work.Outputs(); i++ {
		ok = s.checkPort(w, "output", s.work.OutHolder(i), external) && ok
	}
	return ok
}

// checkPort validates one boundary DataHolder. A port forwards data, so it
// needs a producer and a consumer; the outward-facing side may be open on
// the highest-level Simul. Ports removed by the shortcut pass are valid.
func (s *Simul) checkPort(w io.Writer, dir string, dh *DataHolder, external bool) bool {
	tp := dh.tp
	if tp.Shortcut() {
		return true
	}
	inward := dir == "output" // producer of an output port is inside s
	ok := true
	if tp.source == nil {
		if inward || !external {
			fmt.Fprintf(w, "ERROR %s: %s %s has no producer\n", s.Path(), dir, dh.name)
			ok = false
		}
	} else if !checkHop(w, s.Path(), dh) {
		ok = false
	}
	if tp.target == nil {
		if !inward || !external {
			fmt.Fprintf(w, "WARN  %s: %s %s has no consumer\n", s.Path(), dir, dh.name)
		}
	} else if !checkConsumer(w, s.Path(), dh) {
		ok = false
	}
	return ok
}
