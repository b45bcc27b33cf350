package flow

import (
	"context"
	"fmt"
	"sync"
)

// MemoryType is the type tag of the in-process TransportHolder.
const MemoryType = "memory"

// NoTag marks an inactive read or write tag.
const NoTag = -1

// NoRank marks a node or transport without an assigned rank.
const NoRank = -1

// TransportHolder is the pluggable mechanism behind a Transport.
//
// A hop between a producer and a consumer DataHolder is carried by the
// producer's holder: Write is called with the producer's Transport and Read
// with the consumer's Transport. Implementations must be safe to share
// between clones.
type TransportHolder interface {
	// Type returns the mechanism tag, e.g. "memory".
	Type() string
	// Clone returns a fresh holder of the same kind.
	Clone() TransportHolder
	// Read fills tp's owner from its source. May block until the paired write.
	Read(ctx context.Context, tp *Transport) error
	// Write publishes tp's owner towards its target.
	Write(ctx context.Context, tp *Transport) error
	// ConnectionPossible reports whether the mechanism can carry data
	// between the two ranks.
	ConnectionPossible(srcRank, dstRank int) bool
}

// NewMemoryHolderFunc creates the in-memory TransportHolder.
// Set by flow/th's init(); the shortcut pass needs it to force same-rank
// hops into memory.
var NewMemoryHolderFunc func() TransportHolder

func newMemoryHolder() TransportHolder {
	if NewMemoryHolderFunc == nil {
		panic("flow: no in-memory TransportHolder registered (import github.com/cepflow/cepflow/flow/th)")
	}
	return NewMemoryHolderFunc()
}

// Transport is one end of a data channel. It is owned by a DataHolder and
// records the producer (source) and consumer (target) of the hops touching
// that DataHolder, the mechanism, the correlation tags and the rank of the
// owning step.
//
// A leaf input only has a source and a leaf output only has a target. The
// boundary DataHolders of a Simul have both: they forward data from an outer
// hop into an inner one. ShortcutConnections removes such forwarding hops.
type Transport struct {
	owner    *DataHolder
	source   *DataHolder
	target   *DataHolder
	holder   TransportHolder
	readTag  int
	writeTag int
	rank     int
	bypassed bool
}

func newTransport(owner *DataHolder) *Transport {
	return &Transport{
		owner:    owner,
		readTag:  NoTag,
		writeTag: NoTag,
		rank:     NoRank,
	}
}

// Owner returns the DataHolder this Transport belongs to.
func (tp *Transport) Owner() *DataHolder { return tp.owner }

// Source returns the producer feeding the owner, or nil.
func (tp *Transport) Source() *DataHolder { return tp.source }

// Target returns the consumer fed by the owner, or nil.
func (tp *Transport) Target() *DataHolder { return tp.target }

// Holder returns the mechanism.
func (tp *Transport) Holder() TransportHolder { return tp.holder }

// SetHolder replaces the mechanism without touching the endpoints.
func (tp *Transport) SetHolder(h TransportHolder) { tp.holder = h }

// Type returns the mechanism tag, or "" when no mechanism is set.
func (tp *Transport) Type() string {
	if tp.holder == nil {
		return ""
	}
	return tp.holder.Type()
}

// ReadTag is the tag the owner receives with.
func (tp *Transport) ReadTag() int { return tp.readTag }

// WriteTag is the tag the owner sends with.
func (tp *Transport) WriteTag() int { return tp.writeTag }

// Rank returns the rank of the step owning this Transport.
func (tp *Transport) Rank() int { return tp.rank }

// IsActive reports whether the Transport still carries any hop.
func (tp *Transport) IsActive() bool {
	return tp.source != nil || tp.target != nil
}

// inboundHolder is the mechanism of the hop feeding the owner.
func (tp *Transport) inboundHolder() TransportHolder {
	if tp.source == nil {
		return nil
	}
	return tp.source.tp.holder
}

// Read pulls the inbound hop's payload into the owner. No-op without source.
func (tp *Transport) Read(ctx context.Context) error {
	h := tp.inboundHolder()
	if h == nil {
		return nil
	}
	return h.Read(ctx, tp)
}

// Write pushes the owner's payload onto the outbound hop. No-op without target.
func (tp *Transport) Write(ctx context.Context) error {
	if tp.target == nil || tp.holder == nil {
		return nil
	}
	return tp.holder.Write(ctx, tp)
}

// Shortcut reports whether ShortcutConnections removed tp from the data path.
func (tp *Transport) Shortcut() bool { return tp.bypassed }

// neutralize removes the Transport from the data path. The object remains
// for bookkeeping.
func (tp *Transport) neutralize() {
	tp.bypassed = true
	tp.source = nil
	tp.target = nil
	tp.readTag = NoTag
	tp.writeTag = NoTag
}

// setHop installs h as the mechanism of the hop src -> dst. The producer
// carries the hop; a pure consumer mirrors the mechanism. A forwarding
// consumer keeps the mechanism of its own outbound hop.
func setHop(src, dst *DataHolder, h TransportHolder) {
	src.tp.holder = h
	if dst.tp.target == nil {
		dst.tp.holder = h.Clone()
	}
}

// hop is one producer -> consumer pair awaiting a link.
type hop struct{ src, dst *DataHolder }

// linkAll wires every pair in hops, or none of them if any endpoint is
// already taken. A DataHolder has at most one producer and one consumer.
func linkAll(hops []hop, proto TransportHolder) error {
	for _, h := range hops {
		if h.dst.tp.source != nil {
			return fmt.Errorf("%w: %s already fed by %s", ErrAlreadyWired, h.dst.name, h.dst.tp.source.name)
		}
		if h.src.tp.target != nil {
			return fmt.Errorf("%w: %s already feeds %s", ErrAlreadyWired, h.src.name, h.src.tp.target.name)
		}
	}
	for _, h := range hops {
		link(h.src, h.dst, proto)
	}
	return nil
}

// link wires src -> dst with a fresh tag and a clone of proto.
func link(src, dst *DataHolder, proto TransportHolder) {
	tag := nextTag()
	src.tp.target = dst
	src.tp.writeTag = tag
	dst.tp.source = src
	dst.tp.readTag = tag
	setHop(src, dst, proto.Clone())
}

var tags struct {
	sync.Mutex
	next int
}

func nextTag() int {
	tags.Lock()
	defer tags.Unlock()
	t := tags.next
	tags.next++
	return t
}

// ResetTags restarts tag numbering. Every rank of an SPMD deployment builds
// the same graph in the same order; resetting before each build yields
// identical tags on every rank.
func ResetTags() {
	tags.Lock()
	tags.next = 0
	tags.Unlock()
}
