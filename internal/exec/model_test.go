package exec_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/builder"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exclusive"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exec"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// Test for: A linear chain evaluates in dependency order and every node ends Valid.
func TestEvaluateNode_LinearChain(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)

	// --- Act ---
	f := m.EvaluateNode(ch.d.UUID())

	// --- Assert ---
	require.True(t, f.Wait(time.Second))
	require.NoError(t, f.Err())
	assert.Equal(t, 84.0, displayed(t, ch.d))
	for _, n := range []node.Node{ch.a, ch.x, ch.c, ch.d} {
		assert.Equal(t, exec.Valid, m.NodeEvalState(n.UUID()), n.TypeName())
	}

	data, ok := m.NodeData(ch.c.UUID(), out(ch.c, 0))
	require.True(t, ok)
	assert.Equal(t, exec.PortValid, data.State)
	assert.Equal(t, 84.0, asFloat(t, data.Value))
	assert.True(t, m.IsGraphEvaluated(ch.g))
}

// Test for: Structural edits only re-evaluate what is downstream of the change.
func TestEvaluateNode_DeleteAndReconnect(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	counter := newEvalCounter()
	m := newTestModel(t, ch.g, exec.WithObserver(counter.observe))
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))

	// --- Act: drop one of the two inputs of C ---
	require.NoError(t, ch.g.DeleteConnection(ch.bToCb))

	// --- Assert ---
	assert.Equal(t, exec.Valid, m.NodeEvalState(ch.a.UUID()))
	assert.Equal(t, exec.Valid, m.NodeEvalState(ch.x.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.c.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.d.UUID()))

	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))
	assert.Equal(t, 42.0, displayed(t, ch.d))

	// --- Act: reconnect ---
	_, err := ch.b.Connect(ch.x, 0, ch.c, 1)
	require.NoError(t, err)
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.c.UUID()))
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))

	// --- Assert ---
	assert.Equal(t, 84.0, displayed(t, ch.d))
	assert.Equal(t, 1, counter.count(ch.a))
	assert.Equal(t, 1, counter.count(ch.x))
	assert.Equal(t, 3, counter.count(ch.c))
	assert.Equal(t, 3, counter.count(ch.d))

	// --- Act: delete B entirely ---
	require.NoError(t, ch.g.DeleteNode(ch.x.ID()))

	// --- Assert ---
	assert.Equal(t, exec.Invalid, m.NodeEvalState(ch.x.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.c.UUID()))
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))
	assert.Equal(t, 0.0, displayed(t, ch.d))
}

// Test for: Values travel through group input and output providers by port index.
func TestEvaluateGraph_GroupForwarding(t *testing.T) {
	// --- Arrange ---
	root := graph.New()
	b := builder.New(root, nil)
	first, second := numeric.NewNumberSource(26), numeric.NewNumberSource(8)
	d1, d2 := numeric.NewDisplay(), numeric.NewDisplay()
	appendAll(t, b, first, second, d1, d2)

	types := []string{numeric.TypeDouble, numeric.TypeDouble}
	group, err := b.AddGraph(types, types)
	require.NoError(t, err)
	inner := b.Sub(group.Graph)
	p1, p2 := numeric.NewPassthrough(), numeric.NewPassthrough()
	appendAll(t, inner, p1, p2)
	connect(t, inner, group.Input, 0, p1, 0)
	connect(t, inner, group.Input, 1, p2, 0)
	connect(t, inner, p1, 0, group.Output, 0)
	connect(t, inner, p2, 0, group.Output, 1)

	connect(t, b, first, 0, group.Graph, 0)
	connect(t, b, second, 0, group.Graph, 1)
	connect(t, b, group.Graph, 0, d1, 0)
	connect(t, b, group.Graph, 1, d2, 0)

	m := newTestModel(t, root)

	// --- Act ---
	f := m.EvaluateGraph(root)

	// --- Assert ---
	require.True(t, f.Wait(time.Second), "%v", f.Err())
	assert.Equal(t, 26.0, displayed(t, d1))
	assert.Equal(t, 8.0, displayed(t, d2))
	assert.Equal(t, exec.Valid, m.NodeEvalState(group.Graph.UUID()))
	assert.True(t, m.IsGraphEvaluated(root))

	data, ok := m.NodeData(group.Graph.UUID(), out(group.Graph, 1))
	require.True(t, ok)
	assert.Equal(t, 8.0, asFloat(t, data.Value))

	// --- Act: change an input of the group ---
	first.SetValue(30)

	// --- Assert ---
	assert.Equal(t, exec.Outdated, m.NodeEvalState(group.Graph.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(p1.UUID()))
	require.True(t, m.EvaluateNode(d1.UUID()).Wait(time.Second))
	assert.Equal(t, 30.0, displayed(t, d1))
}

// Test for: Input data set on the root graph feeds its input provider.
func TestSetNodeData_RootGraphInput(t *testing.T) {
	// --- Arrange ---
	root := graph.New()
	require.NoError(t, root.InitInputOutputProviders())
	port := root.AddInPort(numeric.TypeDouble)
	b := builder.New(root, nil)
	d := numeric.NewDisplay()
	appendAll(t, b, d)
	connect(t, b, root.InputProvider(), 0, d, 0)
	m := newTestModel(t, root)

	// --- Act ---
	require.NoError(t, m.SetNodeData(root.UUID(), port, cty.NumberIntVal(5)))
	f := m.EvaluateNode(d.UUID())

	// --- Assert ---
	require.True(t, f.Wait(time.Second), "%v", f.Err())
	assert.Equal(t, 5.0, displayed(t, d))
}

func buildSleepers(t *testing.T, exclusiveMode bool, count int, delay time.Duration) (*graph.Graph, []node.Node) {
	t.Helper()
	g := graph.New()
	b := builder.New(g, nil)
	src := numeric.NewNumberSource(1)
	appendAll(t, b, src)
	var sleepers []node.Node
	for range count {
		s := numeric.NewSleeper(delay, exclusiveMode)
		appendAll(t, b, s)
		connect(t, b, src, 0, s, 0)
		sleepers = append(sleepers, s)
	}
	return g, sleepers
}

// Test for: Exclusive nodes of one domain never evaluate at the same time.
func TestExclusiveDetached_SerializesWithinModel(t *testing.T) {
	// --- Arrange ---
	g, sleepers := buildSleepers(t, true, 3, 30*time.Millisecond)
	tracker := newOverlapTracker(sleepers...)
	m := newTestModel(t, g, exec.WithWorkers(8), exec.WithBroker(exclusive.NewLocal()), exec.WithObserver(tracker.observe))

	// --- Act ---
	started := time.Now()
	f := m.EvaluateGraph(g)

	// --- Assert ---
	require.True(t, f.Wait(5*time.Second), "%v", f.Err())
	assert.Equal(t, 1, tracker.peak())
	assert.GreaterOrEqual(t, time.Since(started), 90*time.Millisecond)
	for _, s := range sleepers {
		assert.Equal(t, exec.Valid, m.NodeEvalState(s.UUID()))
	}
}

// Test for: Exclusivity holds across models sharing a broker.
func TestExclusiveDetached_SerializesAcrossModels(t *testing.T) {
	// --- Arrange ---
	broker := exclusive.NewLocal()
	g1, s1 := buildSleepers(t, true, 2, 30*time.Millisecond)
	g2, s2 := buildSleepers(t, true, 2, 30*time.Millisecond)
	tracker := newOverlapTracker(append(s1, s2...)...)
	m1 := newTestModel(t, g1, exec.WithBroker(broker), exec.WithObserver(tracker.observe))
	m2 := newTestModel(t, g2, exec.WithBroker(broker), exec.WithObserver(tracker.observe))

	// --- Act ---
	f := m1.EvaluateGraph(g1).Join(m2.EvaluateGraph(g2))

	// --- Assert ---
	require.True(t, f.Wait(5*time.Second), "%v", f.Err())
	assert.Equal(t, 1, tracker.peak())
}

// Test for: Exclusive nodes of one domain take the token in dispatch order.
func TestExclusiveDetached_RunsInDispatchOrder(t *testing.T) {
	// --- Arrange ---
	broker := exclusive.NewLocal()
	g, sleepers := buildSleepers(t, true, 6, time.Millisecond)
	isSleeper := make(map[nodeid.NodeUUID]bool)
	for _, s := range sleepers {
		isSleeper[s.UUID()] = true
	}
	var mu sync.Mutex
	var order []nodeid.NodeUUID
	m := newTestModel(t, g, exec.WithWorkers(8), exec.WithBroker(broker), exec.WithObserver(func(ev exec.Event) {
		if ev.Kind == exec.NodeEvalStateChanged && ev.State == exec.Evaluating && isSleeper[ev.UUID] {
			mu.Lock()
			order = append(order, ev.UUID)
			mu.Unlock()
		}
	}))
	hold, err := broker.Acquire(context.Background(), sleepers[0].NodeBase().ExclusivityDomain())
	require.NoError(t, err)

	// --- Act ---
	var f *exec.Future
	for _, s := range sleepers {
		next := m.EvaluateNode(s.UUID())
		if f == nil {
			f = next
		} else {
			f = f.Join(next)
		}
	}
	hold()

	// --- Assert ---
	require.True(t, f.Wait(5*time.Second), "%v", f.Err())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(sleepers)
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	want := make([]nodeid.NodeUUID, 0, len(sleepers))
	for _, s := range sleepers {
		want = append(want, s.UUID())
	}
	assert.Equal(t, want, order)
}

// Test for: Plain detached nodes run in parallel.
func TestDetached_RunsInParallel(t *testing.T) {
	// --- Arrange ---
	g, sleepers := buildSleepers(t, false, 3, 100*time.Millisecond)
	tracker := newOverlapTracker(sleepers...)
	m := newTestModel(t, g, exec.WithWorkers(4), exec.WithObserver(tracker.observe))

	// --- Act ---
	f := m.EvaluateGraph(g)

	// --- Assert ---
	require.True(t, f.Wait(5*time.Second), "%v", f.Err())
	assert.GreaterOrEqual(t, tracker.peak(), 2)
}

// Test for: Future.Get returns as soon as the requested node is Valid.
func TestFuture_GetDoesNotWaitForOtherTargets(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	src, p1, p2 := numeric.NewNumberSource(42), numeric.NewPassthrough(), numeric.NewPassthrough()
	slow := numeric.NewSleeper(300*time.Millisecond, false)
	appendAll(t, b, src, p1, p2, slow)
	connect(t, b, src, 0, p1, 0)
	connect(t, b, p1, 0, p2, 0)
	connect(t, b, p2, 0, slow, 0)
	m := newTestModel(t, g)

	// --- Act ---
	f := m.EvaluateNode(slow.UUID())
	v, ok := f.Get(p2.UUID(), out(p2, 0), time.Second)

	// --- Assert ---
	require.True(t, ok)
	assert.Equal(t, 42.0, asFloat(t, v))
	assert.NotEqual(t, exec.Valid, m.NodeEvalState(slow.UUID()))

	require.True(t, f.Wait(5*time.Second))
	assert.Equal(t, exec.Valid, m.NodeEvalState(slow.UUID()))
}

// Test for: Evaluation requests against a cyclic graph fail without evaluating anything.
func TestEvaluateNode_CyclicGraphIsRejected(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	p1, p2 := numeric.NewPassthrough(), numeric.NewPassthrough()
	appendAll(t, b, p1, p2)
	connect(t, b, p1, 0, p2, 0)
	connect(t, b, p2, 0, p1, 0)
	counter := newEvalCounter()
	m := newTestModel(t, g, exec.WithObserver(counter.observe))

	// --- Act ---
	f := m.EvaluateNode(p2.UUID())
	auto := m.AutoEvaluateGraph(g)

	// --- Assert ---
	assert.True(t, f.Finished())
	assert.False(t, f.Wait(0))
	assert.ErrorIs(t, f.Err(), exec.ErrCyclicGraph)
	assert.ErrorIs(t, auto.Err(), exec.ErrCyclicGraph)
	assert.False(t, m.IsAutoEvaluatingGraph(g))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(p1.UUID()))
	assert.Zero(t, counter.count(p1))
	assert.Zero(t, counter.count(p2))
}

// Test for: Only the closure of the target is evaluated.
func TestEvaluateNode_DoesNotTouchUnrelatedNodes(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	src1, d1 := numeric.NewNumberSource(1), numeric.NewDisplay()
	src2, d2 := numeric.NewNumberSource(2), numeric.NewDisplay()
	appendAll(t, b, src1, d1, src2, d2)
	connect(t, b, src1, 0, d1, 0)
	connect(t, b, src2, 0, d2, 0)
	m := newTestModel(t, g)

	// --- Act ---
	require.True(t, m.EvaluateNode(d1.UUID()).Wait(time.Second))

	// --- Assert ---
	assert.Equal(t, exec.Valid, m.NodeEvalState(src1.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(src2.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(d2.UUID()))
	assert.Zero(t, d2.EvalCount())
	assert.False(t, m.IsGraphEvaluated(g))
	for _, tc := range []struct {
		name string
		n    node.Node
		port nodeid.PortID
	}{
		{name: "unrelated output", n: src2, port: out(src2, 0)},
		{name: "unrelated input", n: d2, port: in(d2, 0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pd, _ := m.NodeData(tc.n.UUID(), tc.port)
			assert.Equal(t, exec.PortOutdated, pd.State)
			assert.True(t, pd.Value == cty.NilVal || pd.Value.IsNull())
		})
	}
}

// Test for: Evaluating a producer leaves the port data of its consumers alone.
func TestEvaluateNode_DoesNotTouchConsumerPorts(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	src, d := numeric.NewNumberSource(3), numeric.NewDisplay()
	appendAll(t, b, src, d)
	connect(t, b, src, 0, d, 0)
	m := newTestModel(t, g)
	before, _ := m.NodeData(d.UUID(), in(d, 0))

	// --- Act ---
	require.True(t, m.EvaluateNode(src.UUID()).Wait(time.Second))

	// --- Assert ---
	after, _ := m.NodeData(d.UUID(), in(d, 0))
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, exec.PortOutdated, after.State)
	assert.Equal(t, exec.Outdated, m.NodeEvalState(d.UUID()))
	srcOut, ok := m.NodeData(src.UUID(), out(src, 0))
	require.True(t, ok)
	assert.Equal(t, exec.PortValid, srcOut.State)

	require.True(t, m.EvaluateNode(d.UUID()).Wait(time.Second))
	got, ok := m.NodeData(d.UUID(), in(d, 0))
	require.True(t, ok)
	assert.Equal(t, exec.PortValid, got.State)
	assert.Equal(t, 3.0, asFloat(t, got.Value))
	assert.Equal(t, 3.0, displayed(t, d))
}

// Test for: Evaluating Valid nodes again does not run them.
func TestEvaluateNode_IsIdempotent(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))

	// --- Act ---
	f := m.EvaluateGraph(ch.g)

	// --- Assert ---
	require.True(t, f.Wait(time.Second))
	assert.Equal(t, 1, ch.d.EvalCount())
}

// Test for: Invalidation reaches every transitive dependent and nothing upstream.
func TestInvalidateNode_PropagatesDownstream(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))

	// --- Act ---
	require.NoError(t, m.InvalidateNode(ch.x.UUID()))

	// --- Assert ---
	assert.Equal(t, exec.Valid, m.NodeEvalState(ch.a.UUID()))
	for _, n := range []node.Node{ch.x, ch.c, ch.d} {
		assert.Equal(t, exec.Outdated, m.NodeEvalState(n.UUID()), n.TypeName())
	}
	data, ok := m.NodeData(ch.c.UUID(), out(ch.c, 0))
	require.True(t, ok)
	assert.Equal(t, exec.PortOutdated, data.State)

	assert.ErrorIs(t, m.InvalidateNode(nodeid.NewUUID()), exec.ErrNodeNotFound)
}

// Test for: A failing node fails the pass but its siblings still evaluate.
func TestEvaluateGraph_FailureKeepsSiblingsRunning(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	src, bad := numeric.NewNumberSource(3), newFailNode()
	d1, d2 := numeric.NewDisplay(), numeric.NewDisplay()
	appendAll(t, b, src, bad, d1, d2)
	connect(t, b, src, 0, bad, 0)
	connect(t, b, bad, 0, d1, 0)
	connect(t, b, src, 0, d2, 0)

	var failed []exec.Event
	m := newTestModel(t, g, exec.WithObserver(func(ev exec.Event) {
		if ev.Kind == exec.NodeEvaluated && ev.Err != nil {
			failed = append(failed, ev)
		}
	}))

	// --- Act ---
	f := m.EvaluateGraph(g)

	// --- Assert ---
	assert.False(t, f.Wait(time.Second))
	assert.ErrorIs(t, f.Err(), errBoom)
	assert.Equal(t, exec.Outdated, m.NodeEvalState(bad.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(d1.UUID()))
	assert.Zero(t, d1.EvalCount())
	assert.Equal(t, exec.Valid, m.NodeEvalState(d2.UUID()))
	assert.Equal(t, 3.0, displayed(t, d2))
	require.Len(t, failed, 1)
	assert.Equal(t, bad.UUID(), failed[0].UUID)
}

// Test for: A required input without data fails the node.
func TestEvaluateNode_MissingRequiredInput(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	d := numeric.NewDisplay()
	appendAll(t, builder.New(g, nil), d)
	m := newTestModel(t, g)

	// --- Act ---
	f := m.EvaluateNode(d.UUID())

	// --- Assert ---
	assert.False(t, f.Wait(time.Second))
	assert.ErrorIs(t, f.Err(), exec.ErrMissingInput)
	assert.Zero(t, d.EvalCount())

	// --- Act: inject data ---
	require.NoError(t, m.SetNodeData(d.UUID(), in(d, 0), cty.NumberIntVal(5)))

	// --- Assert ---
	require.True(t, m.EvaluateNode(d.UUID()).Wait(time.Second))
	assert.Equal(t, 5.0, displayed(t, d))
}

// Test for: Output data set by hand reaches consumers without re-running the producer.
func TestSetNodeData_Output(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))

	// --- Act ---
	require.NoError(t, m.SetNodeData(ch.a.UUID(), out(ch.a, 0), cty.NumberIntVal(7)))

	// --- Assert ---
	assert.Equal(t, exec.Valid, m.NodeEvalState(ch.a.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.x.UUID()))
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))
	assert.Equal(t, 14.0, displayed(t, ch.d))

	assert.ErrorIs(t, m.SetNodeData(ch.a.UUID(), nodeid.PortID(99), cty.NumberIntVal(1)), exec.ErrPortNotFound)
}

// Test for: Auto evaluation re-runs after changes until it is stopped.
func TestAutoEvaluateGraph_RearmsUntilStopped(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)

	// --- Act ---
	f := m.AutoEvaluateGraph(ch.g)

	// --- Assert ---
	require.True(t, f.Wait(time.Second))
	assert.True(t, m.IsAutoEvaluatingGraph(ch.g))
	assert.Equal(t, 84.0, displayed(t, ch.d))

	ch.a.SetValue(1)
	require.Eventually(t, func() bool {
		v, ok := ch.d.Last()
		return ok && v == 2
	}, time.Second, 5*time.Millisecond)

	// --- Act: stop ---
	m.StopAutoEvaluatingGraph(ch.g)
	ch.a.SetValue(5)

	// --- Assert ---
	assert.False(t, m.IsAutoEvaluatingGraph(ch.g))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.d.UUID()))
	assert.Equal(t, 2.0, displayed(t, ch.d))
}

// Test for: Auto evaluation of a single node follows its dependencies.
func TestAutoEvaluateNode(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)

	// --- Act ---
	require.True(t, m.AutoEvaluateNode(ch.c.UUID()).Wait(time.Second))
	ch.a.SetValue(10)

	// --- Assert ---
	require.Eventually(t, func() bool { return m.IsNodeEvaluated(ch.c.UUID()) }, time.Second, 5*time.Millisecond)
	data, ok := m.NodeData(ch.c.UUID(), out(ch.c, 0))
	require.True(t, ok)
	assert.Equal(t, 20.0, asFloat(t, data.Value))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.d.UUID()))

	m.StopAutoEvaluatingNode(ch.c.UUID())
	assert.False(t, m.IsAutoEvaluatingNode(ch.c.UUID()))
}

// Test for: Paused nodes block their dependents and resume as Outdated.
func TestPauseNode(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))

	// --- Act ---
	require.NoError(t, m.PauseNode(ch.x.UUID()))
	ch.a.SetValue(1)

	// --- Assert ---
	assert.Equal(t, exec.Paused, m.NodeEvalState(ch.x.UUID()))
	data, ok := m.NodeData(ch.x.UUID(), out(ch.x, 0))
	require.True(t, ok)
	assert.Equal(t, 42.0, asFloat(t, data.Value))

	f := m.EvaluateNode(ch.d.UUID())
	assert.False(t, f.Wait(time.Second))
	assert.ErrorIs(t, f.Err(), exec.ErrPaused)

	// --- Act: resume ---
	require.NoError(t, m.ResumeNode(ch.x.UUID()))

	// --- Assert ---
	assert.Equal(t, exec.Outdated, m.NodeEvalState(ch.x.UUID()))
	require.True(t, m.EvaluateNode(ch.d.UUID()).Wait(time.Second))
	assert.Equal(t, 2.0, displayed(t, ch.d))
}

// Test for: A result computed from outdated inputs is discarded and the node runs again.
func TestEvaluateNode_DiscardsStaleResult(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	gate := newGateNode()
	appendAll(t, builder.New(g, nil), gate)
	m := newTestModel(t, g)

	f := m.EvaluateNode(gate.UUID())
	require.Eventually(t, func() bool { return m.NodeEvalState(gate.UUID()) == exec.Evaluating }, time.Second, time.Millisecond)

	// --- Act ---
	require.NoError(t, m.InvalidateNode(gate.UUID()))
	assert.Equal(t, exec.Evaluating, m.NodeEvalState(gate.UUID()))
	close(gate.release)

	// --- Assert ---
	require.True(t, f.Wait(time.Second), "%v", f.Err())
	assert.Equal(t, int32(2), gate.evals.Load())
	assert.Equal(t, exec.Valid, m.NodeEvalState(gate.UUID()))
}

// Test for: Requesting a node that is evaluating joins the running evaluation.
func TestEvaluateNode_JoinsRunningEvaluation(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	gate := newGateNode()
	appendAll(t, builder.New(g, nil), gate)
	m := newTestModel(t, g)

	first := m.EvaluateNode(gate.UUID())
	require.Eventually(t, func() bool { return m.NodeEvalState(gate.UUID()) == exec.Evaluating }, time.Second, time.Millisecond)

	// --- Act ---
	second := m.EvaluateNode(gate.UUID())
	done := make(chan bool, 1)
	first.Join(second).Then(func(ok bool) { done <- ok })
	close(gate.release)

	// --- Assert ---
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("joined future did not finish")
	}
	assert.Equal(t, int32(1), gate.evals.Load())
}

// Test for: Closing the model fails outstanding and later requests.
func TestClose_FailsPasses(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	gate := newGateNode()
	appendAll(t, builder.New(g, nil), gate)
	m := newTestModel(t, g)
	f := m.EvaluateNode(gate.UUID())

	// --- Act ---
	m.Close()

	// --- Assert ---
	assert.False(t, f.Wait(time.Second))
	assert.ErrorIs(t, f.Err(), exec.ErrClosed)
	assert.ErrorIs(t, m.EvaluateNode(gate.UUID()).Err(), exec.ErrClosed)
	assert.Equal(t, exec.Invalid, m.NodeEvalState(gate.UUID()))
}

// Test for: Disposing the root graph closes the model.
func TestDispose_ClosesModel(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)

	// --- Act ---
	ch.g.Dispose()

	// --- Assert ---
	assert.ErrorIs(t, m.EvaluateGraph(ch.g).Err(), exec.ErrClosed)
}

// Test for: Unknown targets fail immediately and empty graphs succeed immediately.
func TestEvaluate_UnknownAndEmpty(t *testing.T) {
	g := graph.New()
	m := newTestModel(t, g)

	f := m.EvaluateNode(nodeid.NewUUID())
	assert.True(t, f.Finished())
	assert.ErrorIs(t, f.Err(), exec.ErrNodeNotFound)

	empty := m.EvaluateGraph(g)
	assert.True(t, empty.Wait(0))
	assert.True(t, m.IsGraphEvaluated(g))

	assert.ErrorIs(t, m.EvaluateGraph(graph.New()).Err(), exec.ErrNotInTree)
	assert.Equal(t, exec.Invalid, m.NodeEvalState(nodeid.NewUUID()))
}

// Test for: Observers see every state transition of an evaluated node in order.
func TestObserve_StateTransitions(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	src := numeric.NewNumberSource(1)
	appendAll(t, builder.New(g, nil), src)
	m := newTestModel(t, g)

	var states []exec.NodeEvalState
	var passes []exec.Event
	unsubscribe := m.Observe(func(ev exec.Event) {
		switch ev.Kind {
		case exec.NodeEvalStateChanged:
			if ev.UUID == src.UUID() {
				states = append(states, ev.State)
			}
		case exec.PassStarted, exec.PassFinished:
			passes = append(passes, ev)
		}
	})
	defer unsubscribe()

	// --- Act ---
	require.True(t, m.EvaluateNode(src.UUID()).Wait(time.Second))

	// --- Assert ---
	assert.Equal(t, []exec.NodeEvalState{exec.Evaluating, exec.Valid}, states)
	require.Len(t, passes, 2)
	assert.Equal(t, exec.PassStarted, passes[0].Kind)
	assert.Equal(t, exec.PassFinished, passes[1].Kind)
	assert.NoError(t, passes[1].Err)
}

// Test for: A node appended while the model is attached starts Outdated.
func TestNodeAppended_IsTracked(t *testing.T) {
	g := graph.New()
	m := newTestModel(t, g)
	src := numeric.NewNumberSource(1)
	appendAll(t, builder.New(g, nil), src)

	assert.Equal(t, exec.Outdated, m.NodeEvalState(src.UUID()))
	require.True(t, m.EvaluateNode(src.UUID()).Wait(time.Second))
	assert.True(t, m.IsNodeEvaluated(src.UUID()))

	require.NoError(t, g.DeleteNode(src.ID()))
	assert.Equal(t, exec.Invalid, m.NodeEvalState(src.UUID()))
	assert.True(t, errors.Is(m.PauseNode(src.UUID()), exec.ErrNodeNotFound))
}

// Test for: A detached future keeps evaluating without anyone waiting on it.
func TestFuture_DetachKeepsEvaluating(t *testing.T) {
	// --- Arrange ---
	ch := newChain(t)
	m := newTestModel(t, ch.g)

	// --- Act ---
	m.EvaluateNode(ch.d.UUID()).Detach()

	// --- Assert ---
	require.Eventually(t, func() bool {
		return m.IsNodeEvaluated(ch.d.UUID())
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 84.0, displayed(t, ch.d))
}

// Test for: Closing a cycle under auto evaluation stops every re-run.
func TestAutoEvaluateGraph_CycleStopsRearm(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	src, a1, a2, d := numeric.NewNumberSource(1), numeric.NewAdder(), numeric.NewAdder(), numeric.NewDisplay()
	appendAll(t, b, src, a1, a2, d)
	connect(t, b, src, 0, a1, 0)
	connect(t, b, a1, 0, a2, 0)
	connect(t, b, a2, 0, d, 0)

	counter := newEvalCounter()
	var mu sync.Mutex
	var cyclic int
	m := newTestModel(t, g, exec.WithObserver(counter.observe), exec.WithObserver(func(ev exec.Event) {
		if ev.Kind == exec.PassFinished && errors.Is(ev.Err, exec.ErrCyclicGraph) {
			mu.Lock()
			cyclic++
			mu.Unlock()
		}
	}))
	require.True(t, m.AutoEvaluateGraph(g).Wait(time.Second))
	require.Eventually(t, func() bool { return counter.count(d) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, counter.count(src))

	// --- Act ---
	connect(t, b, a2, 0, a1, 1)
	src.SetValue(5)

	// --- Assert ---
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cyclic > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, counter.count(src))
	assert.Equal(t, 1, counter.count(a1))
	assert.Equal(t, 1, counter.count(a2))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(src.UUID()))
	assert.Equal(t, exec.Outdated, m.NodeEvalState(a1.UUID()))
	assert.True(t, m.IsAutoEvaluatingGraph(g))
}

// Test for: A joined future hands out one Done channel that closes after both passes.
func TestFuture_JoinedDoneIsShared(t *testing.T) {
	// --- Arrange ---
	g := graph.New()
	b := builder.New(g, nil)
	g1, g2 := newGateNode(), newGateNode()
	appendAll(t, b, g1, g2)
	m := newTestModel(t, g)
	f := m.EvaluateNode(g1.UUID()).Join(m.EvaluateNode(g2.UUID()))

	// --- Act ---
	first, second := f.Done(), f.Done()

	// --- Assert ---
	assert.Equal(t, first, second)
	select {
	case <-first:
		t.Fatal("done before the gates were released")
	default:
	}

	close(g1.release)
	close(g2.release)
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("joined future never finished")
	}
	assert.NoError(t, f.Err())
	assert.Equal(t, f.Done(), first)
}
