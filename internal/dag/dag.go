package dag

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

var (
	// ErrNodeNotFound is returned when an id is not part of the index.
	ErrNodeNotFound = errors.New("node not found")
	// ErrCycleDetected is returned by DetectCycles.
	ErrCycleDetected = errors.New("cycle detected")
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[nodeid.NodeID]*vertex),
	}
}

// AddNode adds a vertex with the given id. Adding an existing id is a no-op.
func (g *Graph) AddNode(id nodeid.NodeID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &vertex{
		id:  id,
		in:  make(map[nodeid.ConnectionID]struct{}),
		out: make(map[nodeid.ConnectionID]struct{}),
	}
}

// RemoveNode deletes a vertex together with every connection touching it and
// returns the removed connections in canonical order.
func (g *Graph) RemoveNode(id nodeid.NodeID) []nodeid.ConnectionID {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	v, ok := g.nodes[id]
	if !ok {
		return nil
	}

	var removed []nodeid.ConnectionID
	for c := range v.in {
		removed = append(removed, c)
	}
	for c := range v.out {
		if c.InNodeID != id { // self connections were already collected
			removed = append(removed, c)
		}
	}
	for _, c := range removed {
		g.unlink(c)
	}
	delete(g.nodes, id)

	SortConnections(removed)
	return removed
}

// Has reports whether id is part of the index.
func (g *Graph) Has(id nodeid.NodeID) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// AddEdge records a connection. Both endpoints must exist.
func (g *Graph) AddEdge(c nodeid.ConnectionID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	from, ok := g.nodes[c.OutNodeID]
	if !ok {
		return fmt.Errorf("source node not found: %s: %w", c.OutNodeID, ErrNodeNotFound)
	}
	to, ok := g.nodes[c.InNodeID]
	if !ok {
		return fmt.Errorf("destination node not found: %s: %w", c.InNodeID, ErrNodeNotFound)
	}

	from.out[c] = struct{}{}
	to.in[c] = struct{}{}
	return nil
}

// RemoveEdge forgets a connection. It reports whether the connection existed.
func (g *Graph) RemoveEdge(c nodeid.ConnectionID) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.unlink(c)
}

func (g *Graph) unlink(c nodeid.ConnectionID) bool {
	from, okFrom := g.nodes[c.OutNodeID]
	to, okTo := g.nodes[c.InNodeID]
	if !okFrom || !okTo {
		return false
	}
	if _, ok := from.out[c]; !ok {
		return false
	}
	delete(from.out, c)
	delete(to.in, c)
	return true
}

// HasEdge reports whether the connection is recorded.
func (g *Graph) HasEdge(c nodeid.ConnectionID) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	from, ok := g.nodes[c.OutNodeID]
	if !ok {
		return false
	}
	_, ok = from.out[c]
	return ok
}

// InEdges returns the connections ending at id in canonical order.
func (g *Graph) InEdges(id nodeid.NodeID) []nodeid.ConnectionID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	v, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedKeys(v.in)
}

// OutEdges returns the connections starting at id in canonical order.
func (g *Graph) OutEdges(id nodeid.NodeID) []nodeid.ConnectionID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	v, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedKeys(v.out)
}

// Dependencies returns the ids of the nodes id directly consumes data from.
func (g *Graph) Dependencies(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s: %w", id, ErrNodeNotFound)
	}
	return uniqueEnds(v.in, func(c nodeid.ConnectionID) nodeid.NodeID { return c.OutNodeID }), nil
}

// Dependents returns the ids of the nodes directly consuming data of id.
func (g *Graph) Dependents(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s: %w", id, ErrNodeNotFound)
	}
	return uniqueEnds(v.out, func(c nodeid.ConnectionID) nodeid.NodeID { return c.InNodeID }), nil
}

// Upstream returns the transitive dependencies of id in breadth-first order.
// The node itself is not part of the result, even if it lies on a cycle.
func (g *Graph) Upstream(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	return g.closure(id, func(v *vertex) []nodeid.NodeID {
		return uniqueEnds(v.in, func(c nodeid.ConnectionID) nodeid.NodeID { return c.OutNodeID })
	})
}

// Downstream returns the transitive dependents of id in breadth-first order.
func (g *Graph) Downstream(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	return g.closure(id, func(v *vertex) []nodeid.NodeID {
		return uniqueEnds(v.out, func(c nodeid.ConnectionID) nodeid.NodeID { return c.InNodeID })
	})
}

func (g *Graph) closure(id nodeid.NodeID, next func(*vertex) []nodeid.NodeID) ([]nodeid.NodeID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s: %w", id, ErrNodeNotFound)
	}

	seen := map[nodeid.NodeID]bool{id: true}
	var out []nodeid.NodeID
	queue := []*vertex{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, n := range next(v) {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
			queue = append(queue, g.nodes[n])
		}
	}
	return out, nil
}

// Roots returns the ids of nodes without outgoing connections, sorted.
func (g *Graph) Roots() []nodeid.NodeID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	var out []nodeid.NodeID
	for id, v := range g.nodes {
		if len(v.out) == 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// DetectCycles checks the index for any cycles. It returns an error wrapping
// ErrCycleDetected that names the nodes on the first cycle found.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[nodeid.NodeID]bool)
	temporary := make(map[nodeid.NodeID]bool)
	var stack []nodeid.NodeID

	var visit func(v *vertex) error
	visit = func(v *vertex) error {
		if permanent[v.id] {
			return nil
		}
		if temporary[v.id] {
			start := slices.Index(stack, v.id)
			cycle := append(slices.Clone(stack[start:]), v.id)
			parts := make([]string, len(cycle))
			for i, id := range cycle {
				parts[i] = id.String()
			}
			return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(parts, " -> "))
		}

		temporary[v.id] = true
		stack = append(stack, v.id)

		for _, next := range uniqueEnds(v.out, func(c nodeid.ConnectionID) nodeid.NodeID { return c.InNodeID }) {
			if err := visit(g.nodes[next]); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(temporary, v.id)
		permanent[v.id] = true
		return nil
	}

	ids := make([]nodeid.NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// SortConnections orders connections by out node, out port, in node, in port.
func SortConnections(cs []nodeid.ConnectionID) {
	slices.SortFunc(cs, func(a, b nodeid.ConnectionID) int {
		switch {
		case a.OutNodeID != b.OutNodeID:
			return cmp.Compare(a.OutNodeID, b.OutNodeID)
		case a.OutPort != b.OutPort:
			return cmp.Compare(a.OutPort, b.OutPort)
		case a.InNodeID != b.InNodeID:
			return cmp.Compare(a.InNodeID, b.InNodeID)
		default:
			return cmp.Compare(a.InPort, b.InPort)
		}
	})
}


func sortedKeys(m map[nodeid.ConnectionID]struct{}) []nodeid.ConnectionID {
	out := make([]nodeid.ConnectionID, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	SortConnections(out)
	return out
}

func uniqueEnds(m map[nodeid.ConnectionID]struct{}, end func(nodeid.ConnectionID) nodeid.NodeID) []nodeid.NodeID {
	seen := make(map[nodeid.NodeID]bool, len(m))
	out := make([]nodeid.NodeID, 0, len(m))
	for c := range m {
		id := end(c)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
