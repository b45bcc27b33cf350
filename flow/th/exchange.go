package th

import (
	"context"
	"fmt"
	"sync"

	"github.com/cepflow/cepflow/flow"
)

// ExchangeType is the type tag of the exchange mechanism.
const ExchangeType = "exchange"

// DefaultExchangeDepth is the number of payloads a tag can buffer before a
// writer blocks.
const DefaultExchangeDepth = 16

type payload struct {
	seq  int64
	data []float64
}

// Exchange is a set of tag-keyed FIFO queues shared by all ranks of a local
// deployment. A write under tag t is received by the read under tag t.
//
// Thread-safety: safe for concurrent use.
type Exchange struct {
	mu     sync.Mutex
	depth  int
	queues map[int]chan payload
}

// NewExchange creates an Exchange whose queues buffer depth payloads.
// Panics if depth < 1.
func NewExchange(depth int) *Exchange {
	if depth < 1 {
		panic("NewExchange: depth must be >= 1")
	}
	return &Exchange{depth: depth, queues: make(map[int]chan payload)}
}

func (e *Exchange) queue(tag int) chan payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[tag]
	if !ok {
		q = make(chan payload, e.depth)
		e.queues[tag] = q
	}
	return q
}

// Send enqueues a copy of data under tag. Blocks while the queue is full.
func (e *Exchange) Send(ctx context.Context, tag int, seq int64, data []float64) error {
	p := payload{seq: seq, data: append([]float64(nil), data...)}
	select {
	case e.queue(tag) <- p:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("exchange send tag %d: %w", tag, ctx.Err())
	}
}

// Recv dequeues the oldest payload under tag. Blocks until one arrives.
func (e *Exchange) Recv(ctx context.Context, tag int) (int64, []float64, error) {
	select {
	case p := <-e.queue(tag):
		return p.seq, p.data, nil
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("exchange recv tag %d: %w", tag, ctx.Err())
	}
}

// Pending returns the number of buffered payloads under tag.
func (e *Exchange) Pending(tag int) int {
	return len(e.queue(tag))
}

// ExchangeHolder carries a hop through an Exchange. Clones share it.
type ExchangeHolder struct {
	ex *Exchange
}

// NewExchangeHolder returns a TransportHolder sending through ex.
// Panics if ex is nil.
func NewExchangeHolder(ex *Exchange) *ExchangeHolder {
	if ex == nil {
		panic("NewExchangeHolder: nil Exchange")
	}
	return &ExchangeHolder{ex: ex}
}

func (h *ExchangeHolder) Type() string                { return ExchangeType }
func (h *ExchangeHolder) Clone() flow.TransportHolder { return &ExchangeHolder{ex: h.ex} }

// Exchange returns the shared Exchange.
func (h *ExchangeHolder) Exchange() *Exchange { return h.ex }

func (h *ExchangeHolder) Read(ctx context.Context, tp *flow.Transport) error {
	if tp.ReadTag() == flow.NoTag {
		return fmt.Errorf("exchange read on %s: %w", tp.Owner().Name(), flow.ErrNotConnected)
	}
	seq, data, err := h.ex.Recv(ctx, tp.ReadTag())
	if err != nil {
		return err
	}
	tp.Owner().Set(seq, data)
	return nil
}

func (h *ExchangeHolder) Write(ctx context.Context, tp *flow.Transport) error {
	if tp.WriteTag() == flow.NoTag {
		return fmt.Errorf("exchange write on %s: %w", tp.Owner().Name(), flow.ErrNotConnected)
	}
	dh := tp.Owner()
	return h.ex.Send(ctx, tp.WriteTag(), dh.Seq(), dh.Data())
}

// ConnectionPossible is true for any pair of ranks.
func (h *ExchangeHolder) ConnectionPossible(int, int) bool { return true }
