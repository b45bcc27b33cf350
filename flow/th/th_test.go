package th

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cepflow/cepflow/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wire links a single-output producer to a single-input consumer through
// proto inside a fresh root and returns both DataHolders.
func wire(t *testing.T, proto flow.TransportHolder) (*flow.DataHolder, *flow.DataHolder) {
	t.Helper()
	root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
	a := flow.NewStep(flow.NewBoundary(nil, []string{"out"}), "a")
	b := flow.NewStep(flow.NewBoundary([]string{"in"}, nil), "b")
	require.NoError(t, root.AddStep(a))
	require.NoError(t, root.AddStep(b))
	require.NoError(t, root.Connect("a.out", "b.in", proto))
	return a.Work().OutHolder(0), b.Work().InHolder(0)
}

func TestMemory_ReadCopiesFromProducer(t *testing.T) {
	src, dst := wire(t, NewMemory())
	src.Set(7, []float64{1, 2, 3})

	require.NoError(t, src.Write(context.Background()))
	require.NoError(t, dst.Read(context.Background()))

	assert.Equal(t, []float64{1, 2, 3}, dst.Data())
	assert.Equal(t, int64(7), dst.Seq())

	// The consumer owns its copy.
	src.Data()[0] = 99
	assert.Equal(t, 1.0, dst.Data()[0])
}

func TestMemory_ConnectionPossible(t *testing.T) {
	m := NewMemory()
	assert.True(t, m.ConnectionPossible(2, 2))
	assert.False(t, m.ConnectionPossible(0, 1))
	assert.Equal(t, flow.MemoryType, m.Clone().Type())
}

func TestRegister_SetsMemoryFunc(t *testing.T) {
	require.NotNil(t, flow.NewMemoryHolderFunc)
	assert.Equal(t, flow.MemoryType, flow.NewMemoryHolderFunc().Type())
}

func TestExchange_FIFOPerTag(t *testing.T) {
	ex := NewExchange(4)
	ctx := context.Background()
	require.NoError(t, ex.Send(ctx, 1, 0, []float64{1}))
	require.NoError(t, ex.Send(ctx, 2, 0, []float64{2}))
	require.NoError(t, ex.Send(ctx, 1, 1, []float64{3}))
	assert.Equal(t, 2, ex.Pending(1))

	seq, data, err := ex.Recv(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
	assert.Equal(t, []float64{1}, data)

	seq, data, err = ex.Recv(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, []float64{3}, data)

	assert.Equal(t, 1, ex.Pending(2))
}

func TestExchange_SendCopiesPayload(t *testing.T) {
	ex := NewExchange(1)
	buf := []float64{1, 2}
	require.NoError(t, ex.Send(context.Background(), 0, 0, buf))
	buf[0] = 42

	_, data, err := ex.Recv(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, data)
}

func TestExchange_RecvHonorsContext(t *testing.T) {
	ex := NewExchange(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := ex.Recv(ctx, 5)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExchange_SendBlocksWhenFull(t *testing.T) {
	ex := NewExchange(1)
	require.NoError(t, ex.Send(context.Background(), 0, 0, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := ex.Send(ctx, 0, 1, nil)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewExchange_PanicsOnZeroDepth(t *testing.T) {
	assert.Panics(t, func() { NewExchange(0) })
	assert.Panics(t, func() { NewExchangeHolder(nil) })
}

func TestExchangeHolder_RoundTripByTag(t *testing.T) {
	ex := NewExchange(DefaultExchangeDepth)
	src, dst := wire(t, NewExchangeHolder(ex))
	require.Equal(t, src.Transport().WriteTag(), dst.Transport().ReadTag())
	src.Set(3, []float64{4, 5})

	require.NoError(t, src.Write(context.Background()))
	assert.Equal(t, 1, ex.Pending(src.Transport().WriteTag()))
	require.NoError(t, dst.Read(context.Background()))

	assert.Equal(t, []float64{4, 5}, dst.Data())
	assert.Equal(t, int64(3), dst.Seq())
	assert.Same(t, ex, dst.Transport().Holder().(*ExchangeHolder).Exchange())
}

func TestExchangeHolder_UnconnectedTag(t *testing.T) {
	h := NewExchangeHolder(NewExchange(1))
	dh := flow.NewDataHolder("x", "float64", 1)

	assert.True(t, errors.Is(h.Read(context.Background(), dh.Transport()), flow.ErrNotConnected))
	assert.True(t, errors.Is(h.Write(context.Background(), dh.Transport()), flow.ErrNotConnected))
}

func TestNew_Kinds(t *testing.T) {
	ex := NewExchange(1)
	tests := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{"", flow.MemoryType, false},
		{"memory", flow.MemoryType, false},
		{"exchange", ExchangeType, false},
		{"carrier-pigeon", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			h, err := New(tc.kind, ex)
			if tc.wantErr {
				assert.Error(t, err)
				assert.False(t, ValidKinds[tc.kind])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, h.Type())
			assert.True(t, ValidKinds[tc.kind])
		})
	}
	_, err := New(ExchangeType, nil)
	assert.Error(t, err)
}
