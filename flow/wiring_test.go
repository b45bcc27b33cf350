package flow_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cepflow/cepflow/flow"
	"github.com/cepflow/cepflow/flow/internal/testutil"
	"github.com/cepflow/cepflow/flow/th"
	"github.com/cepflow/cepflow/flow/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func boundary(name string, ins, outs int) *flow.Simul {
	in := make([]string, ins)
	for i := range in {
		in[i] = "i" + string(rune('0'+i))
	}
	out := make([]string, outs)
	for i := range out {
		out[i] = "o" + string(rune('0'+i))
	}
	return flow.NewSimul(flow.NewBoundary(in, out), name)
}

func TestConnectInputToArray_SkipsBetweenSteps(t *testing.T) {
	// GIVEN 5 boundary inputs and two children of 2 inputs each
	log := &testutil.Log{}
	s := boundary("S", 5, 0)
	x := flow.NewStep(testutil.NewRecorder("x", log, 2, 0, 1), "x")
	y := flow.NewStep(testutil.NewRecorder("y", log, 2, 0, 1), "y")
	flow.Must(s.AddStep(x))
	flow.Must(s.AddStep(y))

	// WHEN wired as an array with one skipped channel between children
	require.NoError(t, s.ConnectInputToArray([]flow.Node{x, y}, 1, 0, th.NewMemory()))

	// THEN x takes i0,i1 and y takes i3,i4; i2 stays open
	in := s.Work().InHolder
	assert.Same(t, in(0), x.InTransport(0).Source())
	assert.Same(t, in(1), x.InTransport(1).Source())
	assert.Same(t, in(3), y.InTransport(0).Source())
	assert.Same(t, in(4), y.InTransport(1).Source())
	assert.Nil(t, s.InTransport(2).Target())
}

func TestConnectInputToArray_Capacity(t *testing.T) {
	log := &testutil.Log{}
	s := boundary("S", 5, 0)
	x := flow.NewStep(testutil.NewRecorder("x", log, 2, 0, 1), "x")
	y := flow.NewStep(testutil.NewRecorder("y", log, 2, 0, 1), "y")
	flow.Must(s.AddStep(x))
	flow.Must(s.AddStep(y))

	err := s.ConnectInputToArray([]flow.Node{x, y}, 2, 0, th.NewMemory())

	assert.True(t, errors.Is(err, flow.ErrCapacity))
	assert.Nil(t, x.InTransport(0).Source(), "nothing is wired on failure")
}

func TestConnectOutputToArray_Offset(t *testing.T) {
	log := &testutil.Log{}
	s := boundary("S", 0, 4)
	x := flow.NewStep(testutil.NewRecorder("x", log, 0, 1, 1), "x")
	y := flow.NewStep(testutil.NewRecorder("y", log, 0, 2, 1), "y")
	flow.Must(s.AddStep(x))
	flow.Must(s.AddStep(y))

	require.NoError(t, s.ConnectOutputToArray([]flow.Node{x, y}, 0, 1, th.NewMemory()))

	out := s.Work().OutHolder
	assert.Nil(t, s.OutTransport(0).Source())
	assert.Same(t, x.Work().OutHolder(0), out(1).Transport().Source())
	assert.Same(t, y.Work().OutHolder(0), out(2).Transport().Source())
	assert.Same(t, y.Work().OutHolder(1), out(3).Transport().Source())
}

func TestConnectArray_ForeignStep_Fails(t *testing.T) {
	log := &testutil.Log{}
	s := boundary("S", 2, 0)
	stray := flow.NewStep(testutil.NewRecorder("stray", log, 1, 0, 1), "stray")

	err := s.ConnectInputToArray([]flow.Node{stray}, 0, 0, th.NewMemory())

	assert.True(t, errors.Is(err, flow.ErrUnknownStep))
}

func TestSetDHFile_WritesRecords(t *testing.T) {
	// GIVEN a source whose output is redirected to a file
	root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
	snk := work.NewSink(1, 2)
	flow.Must(root.AddStep(flow.NewStep(work.NewSource(1, 2, 10, 1), "src")))
	flow.Must(root.AddStep(flow.NewStep(snk, "snk")))
	flow.Must(root.Connect("src", "snk", th.NewMemory()))
	root.RunOnNode(0, 0)
	path := filepath.Join(t.TempDir(), "src.yaml")
	require.NoError(t, root.SetDHFile("src.out0", path))

	// WHEN two cycles run and the redirection is closed
	runCycles(t, root, 2)
	require.NoError(t, root.SetDHFile("src.out0", ""))

	// THEN the file holds one record per cycle
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := yaml.NewDecoder(f)
	var recs []flow.SinkRecord
	for {
		var rec flow.SinkRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
	assert.Equal(t, flow.SinkRecord{Channel: "out0", Seq: 0, Data: []float64{10, 11}}, recs[0])
	assert.Equal(t, flow.SinkRecord{Channel: "out0", Seq: 1, Data: []float64{12, 13}}, recs[1])
}

func TestSetDHFile_AllChannels(t *testing.T) {
	root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
	flow.Must(root.AddStep(flow.NewStep(work.NewSource(2, 1, 0, 1), "src")))
	base := filepath.Join(t.TempDir(), "dump")

	require.NoError(t, root.SetDHFile("src", base))
	require.NoError(t, root.SetDHFile("src", ""))

	for _, ch := range []string{"out0", "out1"} {
		_, err := os.Stat(base + "." + ch)
		assert.NoError(t, err, ch)
	}
}

func TestSetDHFile_UnknownChannel(t *testing.T) {
	root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
	flow.Must(root.AddStep(flow.NewStep(work.NewSource(1, 1, 0, 1), "src")))

	err := root.SetDHFile("src.nope", "x")

	assert.True(t, errors.Is(err, flow.ErrUnknownChannel))
}

func TestCheckConnections(t *testing.T) {
	t.Run("complete pipeline", func(t *testing.T) {
		root, _, _ := pipeline(t)
		var buf bytes.Buffer
		assert.True(t, root.CheckConnections(&buf), buf.String())
		assert.Empty(t, buf.String())
	})
	t.Run("shortcut pipeline", func(t *testing.T) {
		root, _, _ := pipeline(t)
		root.ShortcutConnections()
		var buf bytes.Buffer
		assert.True(t, root.CheckConnections(&buf), buf.String())
	})
	t.Run("open leaf input", func(t *testing.T) {
		root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
		flow.Must(root.AddStep(flow.NewStep(work.NewSink(1, 1), "snk")))
		root.RunOnNode(0, 0)
		var buf bytes.Buffer
		assert.False(t, root.CheckConnections(&buf))
		assert.Contains(t, buf.String(), "ERROR R.snk: input in0 is not connected")
	})
	t.Run("open leaf output warns", func(t *testing.T) {
		root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
		flow.Must(root.AddStep(flow.NewStep(work.NewSource(1, 1, 0, 1), "src")))
		root.RunOnNode(0, 0)
		var buf bytes.Buffer
		assert.True(t, root.CheckConnections(&buf))
		assert.Contains(t, buf.String(), "WARN  R.src: output out0 is not connected")
	})
	t.Run("memory across ranks", func(t *testing.T) {
		root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
		src := flow.NewStep(work.NewSource(1, 1, 0, 1), "src")
		snk := flow.NewStep(work.NewSink(1, 1), "snk")
		flow.Must(root.AddStep(src))
		flow.Must(root.AddStep(snk))
		flow.Must(root.Connect("src", "snk", th.NewMemory()))
		src.RunOnNode(0, 0)
		snk.RunOnNode(1, 0)
		var buf bytes.Buffer
		assert.False(t, root.CheckConnections(&buf))
		assert.Contains(t, buf.String(), "memory transport cannot connect")
	})
	t.Run("nested port without producer", func(t *testing.T) {
		root := flow.NewSimul(flow.NewBoundary(nil, nil), "R")
		s := flow.NewSimul(flow.NewBoundary([]string{"in"}, nil), "S")
		flow.Must(root.AddStep(s))
		flow.Must(s.AddStep(flow.NewStep(work.NewSink(1, 1), "snk")))
		flow.Must(s.Connect(".in", "snk.in0", th.NewMemory()))
		root.RunOnNode(0, 0)
		var buf bytes.Buffer
		assert.False(t, root.CheckConnections(&buf))
		assert.Contains(t, buf.String(), "ERROR R.S: input in has no producer")
	})
}

func TestDump_PreOrderIndented(t *testing.T) {
	root, _, _ := pipeline(t)

	var buf bytes.Buffer
	root.Dump(&buf)

	var heads []string
	for _, line := range strings.Split(buf.String(), "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "step ") || strings.HasPrefix(trimmed, "simul ") {
			heads = append(heads, line[:len(line)-len(trimmed)]+strings.Fields(trimmed)[1])
		}
	}
	assert.Equal(t, []string{"R", "  src", "  S", "    sc", "  snk"}, heads)
	assert.Contains(t, buf.String(), "out0: memory src=- dst=in")
}

func TestProcess_ExchangeAcrossRanks(t *testing.T) {
	// GIVEN the same graph built for two ranks sharing one exchange
	ex := th.NewExchange(4)
	build := func(rank int) (*flow.Simul, *work.Sink) {
		flow.ResetTags()
		root := flow.NewSimul(flow.NewBoundary(nil, nil), "R", flow.WithRank(rank))
		src := flow.NewStep(work.NewSource(1, 3, 1, 1), "src")
		snk := work.NewSink(1, 3)
		flow.Must(root.AddStep(src))
		flow.Must(root.AddStep(flow.NewStep(snk, "snk")))
		flow.Must(root.Connect("src", "snk", th.NewExchangeHolder(ex)))
		src.RunOnNode(0, 0)
		root.Child("snk").RunOnNode(1, 0)
		root.VM().Trigger(flow.Start)
		return root, snk
	}
	r0, _ := build(0)
	r1, snk := build(1)

	// WHEN rank 0 runs before rank 1
	require.NoError(t, r0.Process(context.Background()))
	require.NoError(t, r1.Process(context.Background()))

	// THEN rank 1's sink received rank 0's payload
	assert.Equal(t, []float64{1, 2, 3}, snk.Last(0))
	assert.Equal(t, 0, ex.Pending(r0.Child("src").(*flow.Step).OutTransport(0).WriteTag()))
}
