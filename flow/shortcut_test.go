package flow

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds root{a, M{b}} wired a.out0 -Tx-> M.x -Ty-> b.in0, with a on
// rankA and M (and b) on rankB.
type chain struct {
	root *Simul
	a    *Step
	m    *Simul
	b    *Step
}

func newChain(t *testing.T, tx, ty TransportHolder, rankA, rankB int) chain {
	t.Helper()
	root := newTestSimul("root", nil, nil)
	a := NewStep(newLeaf(0, 1), "a")
	m := NewSimul(NewBoundary([]string{"x"}, nil), "M")
	b := NewStep(newLeaf(1, 0), "b")
	require.NoError(t, root.AddStep(a))
	require.NoError(t, root.AddStep(m))
	require.NoError(t, m.AddStep(b))
	require.NoError(t, root.Connect("a.out0", "M.x", tx))
	require.NoError(t, m.Connect(".x", "b.in0", ty))
	a.RunOnNode(rankA, 0)
	m.RunOnNode(rankB, 0)
	return chain{root: root, a: a, m: m, b: b}
}

func (c chain) up() *Transport   { return c.a.OutTransport(0) }
func (c chain) mid() *Transport  { return c.m.InTransport(0) }
func (c chain) down() *Transport { return c.b.InTransport(0) }

func (c chain) fused(t *testing.T) {
	t.Helper()
	assert.Same(t, c.b.Work().InHolder(0), c.up().Target())
	assert.Same(t, c.a.Work().OutHolder(0), c.down().Source())
	assert.Equal(t, c.down().ReadTag(), c.up().WriteTag())
	assert.True(t, c.mid().Shortcut())
	assert.False(t, c.mid().IsActive())
	assert.Nil(t, c.mid().Source())
	assert.Nil(t, c.mid().Target())
	assert.Equal(t, NoTag, c.mid().ReadTag())
	assert.Equal(t, NoTag, c.mid().WriteTag())
}

func TestShortcut_DifferentRanks_SameMechanism_Fuses(t *testing.T) {
	// GIVEN A -mpi-> M -mpi-> B with A and B on different ranks
	c := newChain(t, &stubHolder{typ: "mpi"}, &stubHolder{typ: "mpi"}, 0, 1)
	upHolder := c.up().Holder()

	// WHEN shortcutting
	c.root.ShortcutConnections()

	// THEN A connects directly to B with the upstream mechanism
	c.fused(t)
	assert.Same(t, upHolder, c.up().Holder())
	assert.Equal(t, "mpi", c.down().Type())
}

func TestShortcut_SameRank_ForcesMemory(t *testing.T) {
	c := newChain(t, &stubHolder{typ: "mpi"}, &stubHolder{typ: "ib"}, 2, 2)

	c.root.ShortcutConnections()

	c.fused(t)
	assert.Equal(t, MemoryType, c.up().Type())
	assert.Equal(t, MemoryType, c.down().Type())
}

func TestShortcut_DifferentRanks_DistinctMechanisms_Unchanged(t *testing.T) {
	c := newChain(t, &stubHolder{typ: "mpi"}, &stubHolder{typ: "ib"}, 0, 1)
	upTag, downTag := c.up().WriteTag(), c.down().ReadTag()

	c.root.ShortcutConnections()

	assert.Same(t, c.m.Work().InHolder(0), c.up().Target())
	assert.Same(t, c.m.Work().InHolder(0), c.down().Source())
	assert.Equal(t, "mpi", c.up().Type())
	assert.Equal(t, "ib", c.down().Type())
	assert.Equal(t, upTag, c.up().WriteTag())
	assert.Equal(t, downTag, c.down().ReadTag())
	assert.False(t, c.mid().Shortcut())
	assert.True(t, c.mid().IsActive())
}

func TestShortcut_DifferentRanks_MemoryLegUpgraded(t *testing.T) {
	tests := []struct {
		name   string
		tx, ty TransportHolder
	}{
		{"upstream memory", newMemoryHolder(), &stubHolder{typ: "mpi"}},
		{"downstream memory", &stubHolder{typ: "mpi"}, newMemoryHolder()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newChain(t, tc.tx, tc.ty, 0, 1)

			c.root.ShortcutConnections()

			c.fused(t)
			assert.Equal(t, "mpi", c.up().Type())
			assert.Equal(t, "mpi", c.down().Type())
		})
	}
}

func TestShortcut_OpenBoundary_Untouched(t *testing.T) {
	// GIVEN a root whose boundary input feeds a child but has no producer
	root := newTestSimul("root", []string{"in"}, nil)
	a := NewStep(newLeaf(1, 0), "a")
	require.NoError(t, root.AddStep(a))
	require.NoError(t, root.Connect(".in", "a.in0", newMemoryHolder()))
	root.RunOnNode(0, 0)

	root.ShortcutConnections()

	assert.False(t, root.InTransport(0).Shortcut())
	assert.Same(t, a.Work().InHolder(0), root.InTransport(0).Target())
}

func TestShortcut_FusedGraph_PassesCheck(t *testing.T) {
	c := newChain(t, &stubHolder{typ: "mpi"}, &stubHolder{typ: "mpi"}, 0, 1)
	c.root.ShortcutConnections()

	var buf bytes.Buffer
	ok := c.root.CheckConnections(&buf)

	assert.True(t, ok, buf.String())
}

func TestSimplifyConnections_SameRankBecomesMemory(t *testing.T) {
	// GIVEN a and b on rank 0 and c on rank 1, all wired with "mpi"
	root := newTestSimul("root", nil, nil)
	a := NewStep(newLeaf(0, 2), "a")
	b := NewStep(newLeaf(1, 0), "b")
	c := NewStep(newLeaf(1, 0), "c")
	for _, n := range []Node{a, b, c} {
		require.NoError(t, root.AddStep(n))
	}
	require.NoError(t, root.Connect("a.out0", "b.in0", &stubHolder{typ: "mpi"}))
	require.NoError(t, root.Connect("a.out1", "c.in0", &stubHolder{typ: "mpi"}))
	root.RunOnNode(0, 0)
	c.RunOnNode(1, 0)

	// WHEN simplified
	root.SimplifyConnections()

	// THEN only the same-rank hop switched to memory
	assert.Equal(t, MemoryType, a.OutTransport(0).Type())
	assert.Equal(t, MemoryType, b.InTransport(0).Type())
	assert.Equal(t, "mpi", a.OutTransport(1).Type())
	assert.Equal(t, "mpi", c.InTransport(0).Type())

	var buf bytes.Buffer
	assert.True(t, root.CheckConnections(&buf), buf.String())
}

func TestOptimizeConnectionsWith_Prototype(t *testing.T) {
	root := newTestSimul("root", nil, nil)
	a := NewStep(newLeaf(0, 1), "a")
	b := NewStep(newLeaf(1, 0), "b")
	require.NoError(t, root.AddStep(a))
	require.NoError(t, root.AddStep(b))
	require.NoError(t, root.Connect("a", "b", newMemoryHolder()))
	root.RunOnNode(0, 0)

	root.OptimizeConnectionsWith(&stubHolder{typ: "shm"})

	assert.Equal(t, "shm", a.OutTransport(0).Type())
	assert.Equal(t, "shm", b.InTransport(0).Type())
}
