package dag

import (
	"testing"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conn(out nodeid.NodeID, outPort nodeid.PortID, in nodeid.NodeID, inPort nodeid.PortID) nodeid.ConnectionID {
	return nodeid.ConnectionID{OutNodeID: out, OutPort: outPort, InNodeID: in, InPort: inPort}
}

// chain builds 0 -> 1 -> ... -> n-1.
func chain(t *testing.T, n int) *Graph {
	t.Helper()
	g := New()
	for i := 0; i < n; i++ {
		g.AddNode(nodeid.NodeID(i))
	}
	for i := 1; i < n; i++ {
		require.NoError(t, g.AddEdge(conn(nodeid.NodeID(i-1), 0, nodeid.NodeID(i), 0)))
	}
	return g
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode(1)
	assert.Len(t, g.nodes, 1)
	v, ok := g.nodes[1]
	require.True(t, ok)
	assert.Equal(t, nodeid.NodeID(1), v.id)
	assert.NotNil(t, v.in)
	assert.NotNil(t, v.out)

	g.AddNode(1) // Test idempotency
	assert.Len(t, g.nodes, 1)
	assert.True(t, g.Has(1))
	assert.False(t, g.Has(2))
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode(1)
		g.AddNode(2)

		c := conn(1, 0, 2, 3)
		require.NoError(t, g.AddEdge(c))

		assert.True(t, g.HasEdge(c))
		assert.Equal(t, []nodeid.ConnectionID{c}, g.OutEdges(1))
		assert.Equal(t, []nodeid.ConnectionID{c}, g.InEdges(2))
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode(1)

		err := g.AddEdge(conn(9, 0, 1, 0))
		assert.ErrorContains(t, err, "source node not found")
		assert.ErrorIs(t, err, ErrNodeNotFound)

		err = g.AddEdge(conn(1, 0, 9, 0))
		assert.ErrorContains(t, err, "destination node not found")
	})

	t.Run("self connection is recorded", func(t *testing.T) {
		g := New()
		g.AddNode(1)
		require.NoError(t, g.AddEdge(conn(1, 1, 1, 0)))
		assert.ErrorIs(t, g.DetectCycles(), ErrCycleDetected)
	})
}

func TestRemoveNode_ReturnsTouchingConnections(t *testing.T) {
	g := chain(t, 3)
	require.NoError(t, g.AddEdge(conn(0, 1, 2, 1)))

	removed := g.RemoveNode(1)
	assert.Equal(t, []nodeid.ConnectionID{conn(0, 0, 1, 0), conn(1, 0, 2, 0)}, removed)
	assert.False(t, g.Has(1))
	assert.Equal(t, []nodeid.ConnectionID{conn(0, 1, 2, 1)}, g.OutEdges(0))

	assert.Nil(t, g.RemoveNode(1), "removing twice is a no-op")
}

func TestRemoveEdge(t *testing.T) {
	g := chain(t, 2)
	c := conn(0, 0, 1, 0)
	assert.True(t, g.RemoveEdge(c))
	assert.False(t, g.RemoveEdge(c))
	assert.Empty(t, g.InEdges(1))
}

func TestDependenciesAndDependents(t *testing.T) {
	g := New()
	for i := 0; i < 4; i++ {
		g.AddNode(nodeid.NodeID(i))
	}
	// two connections between 0 and 2 count once
	require.NoError(t, g.AddEdge(conn(0, 0, 2, 0)))
	require.NoError(t, g.AddEdge(conn(0, 0, 2, 1)))
	require.NoError(t, g.AddEdge(conn(1, 0, 2, 2)))
	require.NoError(t, g.AddEdge(conn(2, 0, 3, 0)))

	deps, err := g.Dependencies(2)
	require.NoError(t, err)
	assert.Equal(t, []nodeid.NodeID{0, 1}, deps)

	dependents, err := g.Dependents(0)
	require.NoError(t, err)
	assert.Equal(t, []nodeid.NodeID{2}, dependents)

	_, err = g.Dependencies(42)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = g.Dependents(42)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestUpstreamDownstream(t *testing.T) {
	g := chain(t, 4)

	up, err := g.Upstream(3)
	require.NoError(t, err)
	assert.Equal(t, []nodeid.NodeID{2, 1, 0}, up, "breadth-first from the node")

	down, err := g.Downstream(1)
	require.NoError(t, err)
	assert.Equal(t, []nodeid.NodeID{2, 3}, down)

	up, err = g.Upstream(0)
	require.NoError(t, err)
	assert.Empty(t, up)

	assert.Equal(t, []nodeid.NodeID{3}, g.Roots())
}

func TestUpstream_DiamondIsDeduplicated(t *testing.T) {
	g := New()
	for i := 0; i < 4; i++ {
		g.AddNode(nodeid.NodeID(i))
	}
	require.NoError(t, g.AddEdge(conn(0, 0, 1, 0)))
	require.NoError(t, g.AddEdge(conn(0, 0, 2, 0)))
	require.NoError(t, g.AddEdge(conn(1, 0, 3, 0)))
	require.NoError(t, g.AddEdge(conn(2, 0, 3, 1)))

	up, err := g.Upstream(3)
	require.NoError(t, err)
	assert.Equal(t, []nodeid.NodeID{1, 2, 0}, up)

	again, err := g.Upstream(3)
	require.NoError(t, err)
	assert.Equal(t, up, again, "order is deterministic for a fixed graph")
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode(1)
		g.AddNode(2)
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("chain has no cycles", func(t *testing.T) {
		assert.NoError(t, chain(t, 5).DetectCycles())
	})

	t.Run("closing the chain creates a cycle", func(t *testing.T) {
		g := chain(t, 3)
		require.NoError(t, g.AddEdge(conn(2, 0, 0, 0)))
		err := g.DetectCycles()
		require.ErrorIs(t, err, ErrCycleDetected)
		assert.ErrorContains(t, err, "0 -> 1 -> 2 -> 0")
	})

	t.Run("removing the edge restores acyclicity", func(t *testing.T) {
		g := chain(t, 3)
		back := conn(2, 0, 0, 0)
		require.NoError(t, g.AddEdge(back))
		require.Error(t, g.DetectCycles())
		g.RemoveEdge(back)
		assert.NoError(t, g.DetectCycles())
	})
}
