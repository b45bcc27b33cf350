// Package th provides the TransportHolder mechanisms of cepflow.
//
//   - memory: in-process copy from the producer's DataHolder; same rank only
//   - exchange: tag-keyed queues shared by every rank of a deployment
package th

import (
	"context"

	"github.com/cepflow/cepflow/flow"
)

// Memory is the in-process mechanism. The consumer copies the producer's
// payload when it reads; writes are no-ops.
type Memory struct{}

// NewMemory returns an in-memory TransportHolder.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Type() string                { return flow.MemoryType }
func (m *Memory) Clone() flow.TransportHolder { return &Memory{} }

func (m *Memory) Read(_ context.Context, tp *flow.Transport) error {
	if src := tp.Source(); src != nil {
		tp.Owner().CopyFrom(src)
	}
	return nil
}

func (m *Memory) Write(context.Context, *flow.Transport) error { return nil }

// ConnectionPossible is true only within one rank.
func (m *Memory) ConnectionPossible(srcRank, dstRank int) bool {
	return srcRank == dstRank
}
