package exec_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/builder"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exec"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

var errBoom = errors.New("boom")

func newTestModel(t *testing.T, g *graph.Graph, opts ...exec.Option) *exec.Model {
	t.Helper()
	m := exec.New(context.Background(), g, opts...)
	t.Cleanup(func() {
		m.Close()
		m.Wait()
	})
	return m
}

func appendAll(t *testing.T, b *builder.Builder, nodes ...node.Node) {
	t.Helper()
	for _, n := range nodes {
		_, err := b.Append(n)
		require.NoError(t, err)
	}
}

func connect(t *testing.T, b *builder.Builder, from node.Node, outIdx int, to node.Node, inIdx int) nodeid.ConnectionID {
	t.Helper()
	c, err := b.Connect(from, nodeid.PortIndex(outIdx), to, nodeid.PortIndex(inIdx))
	require.NoError(t, err)
	return c
}

func out(n node.Node, idx int) nodeid.PortID {
	return n.NodeBase().PortID(node.Out, nodeid.PortIndex(idx))
}

func in(n node.Node, idx int) nodeid.PortID {
	return n.NodeBase().PortID(node.In, nodeid.PortIndex(idx))
}

func asFloat(t *testing.T, v cty.Value) float64 {
	t.Helper()
	require.False(t, v.IsNull(), "expected data, got none")
	f, _ := v.AsBigFloat().Float64()
	return f
}

func displayed(t *testing.T, d *numeric.Display) float64 {
	t.Helper()
	v, ok := d.Last()
	require.True(t, ok, "display has no value")
	return v
}

// chain is NumberSource(42) -> Adder(B) -> Adder(C, both inputs from B) -> Display.
type chain struct {
	g *graph.Graph
	b *builder.Builder
	a *numeric.NumberSource
	x *numeric.Adder
	c *numeric.Adder
	d *numeric.Display

	bToCa, bToCb nodeid.ConnectionID
}

func newChain(t *testing.T) *chain {
	t.Helper()
	g := graph.New()
	ch := &chain{
		g: g,
		b: builder.New(g, nil),
		a: numeric.NewNumberSource(42),
		x: numeric.NewAdder(),
		c: numeric.NewAdder(),
		d: numeric.NewDisplay(),
	}
	appendAll(t, ch.b, ch.a, ch.x, ch.c, ch.d)
	connect(t, ch.b, ch.a, 0, ch.x, 0)
	ch.bToCa = connect(t, ch.b, ch.x, 0, ch.c, 0)
	ch.bToCb = connect(t, ch.b, ch.x, 0, ch.c, 1)
	connect(t, ch.b, ch.c, 0, ch.d, 0)
	return ch
}

// evalCounter counts successful evaluations per node.
type evalCounter struct {
	mu     sync.Mutex
	counts map[nodeid.NodeUUID]int
}

func newEvalCounter() *evalCounter {
	return &evalCounter{counts: make(map[nodeid.NodeUUID]int)}
}

func (c *evalCounter) observe(ev exec.Event) {
	if ev.Kind != exec.NodeEvaluated || ev.Err != nil {
		return
	}
	c.mu.Lock()
	c.counts[ev.UUID]++
	c.mu.Unlock()
}

func (c *evalCounter) count(n node.Node) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[n.UUID()]
}

// overlapTracker records how many nodes of a set are Evaluating at once.
type overlapTracker struct {
	mu      sync.Mutex
	watch   map[nodeid.NodeUUID]bool
	active  map[nodeid.NodeUUID]bool
	maxSeen int
}

func newOverlapTracker(nodes ...node.Node) *overlapTracker {
	p := &overlapTracker{watch: make(map[nodeid.NodeUUID]bool), active: make(map[nodeid.NodeUUID]bool)}
	for _, n := range nodes {
		p.watch[n.UUID()] = true
	}
	return p
}

func (p *overlapTracker) observe(ev exec.Event) {
	if ev.Kind != exec.NodeEvalStateChanged {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.watch[ev.UUID] {
		return
	}
	if ev.State == exec.Evaluating {
		p.active[ev.UUID] = true
	} else {
		delete(p.active, ev.UUID)
	}
	p.maxSeen = max(p.maxSeen, len(p.active))
}

func (p *overlapTracker) peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

// gateNode runs detached and blocks until released.
type gateNode struct {
	node.Base
	release chan struct{}
	in, out nodeid.PortID
	evals   atomic.Int32
}

func newGateNode() *gateNode {
	n := &gateNode{release: make(chan struct{})}
	n.Init("Gate")
	n.SetEvalMode(node.Detached)
	n.in = n.AddInPort(numeric.TypeDouble, node.Optional())
	n.out = n.AddOutPort(numeric.TypeDouble)
	return n
}

func (n *gateNode) Eval(ctx context.Context, inv *node.Invocation) error {
	n.evals.Add(1)
	select {
	case <-n.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	inv.Set(n.out, cty.NumberIntVal(1))
	return nil
}

// failNode always fails.
type failNode struct {
	node.Base
}

func newFailNode() *failNode {
	n := &failNode{}
	n.Init("Fail")
	n.AddInPort(numeric.TypeDouble, node.Optional())
	n.AddOutPort(numeric.TypeDouble)
	return n
}

func (n *failNode) Eval(context.Context, *node.Invocation) error {
	return errBoom
}
