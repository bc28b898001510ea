package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/dag"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

// TypeName is the registered type name of group graphs.
const TypeName = "Graph"

var (
	ErrNilNode             = errors.New("node is nil")
	ErrNodeNotFound        = errors.New("node not found")
	ErrDuplicateUUID       = errors.New("node uuid already present")
	ErrPortNotFound        = errors.New("port not found")
	ErrInvalidConnection   = errors.New("connection has an unset endpoint")
	ErrTypeMismatch        = errors.New("port type mismatch")
	ErrConnectionExists    = errors.New("connection already exists")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrPortOccupied        = errors.New("input port already connected")
	ErrProviderExists      = errors.New("graph already has a provider of this kind")
	ErrDisposed            = errors.New("graph is disposed")
	ErrCyclic              = errors.New("graph is cyclic")
	ErrAlreadyHasParent    = errors.New("graph is already part of another graph")
	ErrCannotContainItself = errors.New("graph cannot contain itself")
)

// Graph owns nodes and connections and is itself a node of its parent graph.
type Graph struct {
	node.Base

	mu       sync.RWMutex
	parent   *Graph
	nodes    map[nodeid.NodeID]node.Node
	order    []nodeid.NodeID
	index    *dag.Graph
	nextID   nodeid.NodeID
	unsub    map[nodeid.NodeID]func()
	inputID  nodeid.NodeID
	outputID nodeid.NodeID
	disposed bool

	observers listeners
}

// New creates an empty graph.
func New() *Graph {
	g := &Graph{
		nodes:    make(map[nodeid.NodeID]node.Node),
		index:    dag.New(),
		unsub:    make(map[nodeid.NodeID]func()),
		inputID:  nodeid.InvalidNodeID,
		outputID: nodeid.InvalidNodeID,
	}
	g.Init(TypeName)
	g.Base.Observe(g.mirrorOuterPort)
	return g
}

// Observe registers fn for the structural events of this graph (not of its
// subgraphs) and returns a function removing the registration.
func (g *Graph) Observe(fn Listener) (unsubscribe func()) {
	return g.observers.add(fn)
}

// Parent returns the graph owning g, or nil for a root graph.
func (g *Graph) Parent() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parent
}

// Root returns the outermost graph of the tree g belongs to.
func (g *Graph) Root() *Graph {
	root := g
	for p := root.Parent(); p != nil; p = p.Parent() {
		root = p
	}
	return root
}

// IsDisposed reports whether Dispose was called.
func (g *Graph) IsDisposed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.disposed
}

// AppendNode adds n to the graph and returns its id. A preset id is kept if it
// is still free; otherwise a fresh id is allocated and assigned to the node.
func (g *Graph) AppendNode(n node.Node) (nodeid.NodeID, error) {
	if n == nil {
		return nodeid.InvalidNodeID, ErrNilNode
	}
	sub, isGraph := n.(*Graph)
	if isGraph {
		if sub == g {
			return nodeid.InvalidNodeID, ErrCannotContainItself
		}
		if sub.Parent() != nil {
			return nodeid.InvalidNodeID, ErrAlreadyHasParent
		}
	}

	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return nodeid.InvalidNodeID, ErrDisposed
	}
	uuid := n.UUID()
	for _, other := range g.nodes {
		if other.UUID() == uuid {
			g.mu.Unlock()
			return nodeid.InvalidNodeID, fmt.Errorf("append node %s: %w", uuid, ErrDuplicateUUID)
		}
	}
	switch n.(type) {
	case *InputProvider:
		if g.inputID.IsValid() {
			g.mu.Unlock()
			return nodeid.InvalidNodeID, ErrProviderExists
		}
	case *OutputProvider:
		if g.outputID.IsValid() {
			g.mu.Unlock()
			return nodeid.InvalidNodeID, ErrProviderExists
		}
	}

	id := n.ID()
	if _, taken := g.nodes[id]; taken || !id.IsValid() {
		id = g.allocateID()
	}
	if id >= g.nextID {
		g.nextID = id + 1
	}
	n.NodeBase().SetID(id)

	g.nodes[id] = n
	g.order = append(g.order, id)
	g.index.AddNode(id)
	switch n.(type) {
	case *InputProvider:
		g.inputID = id
	case *OutputProvider:
		g.outputID = id
	}
	if isGraph {
		sub.mu.Lock()
		sub.parent = g
		sub.mu.Unlock()
	}
	g.unsub[id] = n.NodeBase().Observe(func(ev node.Event) { g.onNodeEvent(n, ev) })
	g.mu.Unlock()

	switch p := n.(type) {
	case *InputProvider:
		g.syncProvider(&p.Base, node.In, node.Out)
	case *OutputProvider:
		g.syncProvider(&p.Base, node.Out, node.In)
	}

	g.observers.emit(Event{Kind: NodeAppended, Graph: g, Node: n, NodeID: id})
	return id, nil
}

func (g *Graph) allocateID() nodeid.NodeID {
	id := g.nextID
	for {
		if _, taken := g.nodes[id]; !taken {
			return id
		}
		id++
	}
}

// DeleteNode removes the node and every connection touching it.
func (g *Graph) DeleteNode(id nodeid.NodeID) error {
	g.mu.RLock()
	n, ok := g.nodes[id]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("delete node %s: %w", id, ErrNodeNotFound)
	}

	g.observers.emit(Event{Kind: NodeAboutToBeDeleted, Graph: g, Node: n, NodeID: id})

	g.mu.Lock()
	if _, still := g.nodes[id]; !still {
		g.mu.Unlock()
		return fmt.Errorf("delete node %s: %w", id, ErrNodeNotFound)
	}
	removed := g.index.RemoveNode(id)
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(o nodeid.NodeID) bool { return o == id })
	if unsub, ok := g.unsub[id]; ok {
		unsub()
		delete(g.unsub, id)
	}
	if id == g.inputID {
		g.inputID = nodeid.InvalidNodeID
	}
	if id == g.outputID {
		g.outputID = nodeid.InvalidNodeID
	}
	g.mu.Unlock()

	if sub, isGraph := n.(*Graph); isGraph {
		sub.mu.Lock()
		sub.parent = nil
		sub.mu.Unlock()
	}

	g.observers.emit(Event{Kind: NodeDeleted, Graph: g, Node: n, NodeID: id, Removed: removed})
	return nil
}

// AppendConnection validates and adds a connection. On failure the graph is
// left unchanged.
func (g *Graph) AppendConnection(c nodeid.ConnectionID) error {
	if !c.IsValid() {
		return fmt.Errorf("append connection %s: %w", c, ErrInvalidConnection)
	}

	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return ErrDisposed
	}
	if err := g.validateConnection(c); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("append connection %s: %w", c, err)
	}
	if err := g.index.AddEdge(c); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("append connection %s: %w", c, err)
	}
	g.mu.Unlock()

	g.observers.emit(Event{Kind: ConnectionAppended, Graph: g, Connection: c, NodeID: c.InNodeID})
	return nil
}

// validateConnection must be called with g.mu held.
func (g *Graph) validateConnection(c nodeid.ConnectionID) error {
	out, ok := g.nodes[c.OutNodeID]
	if !ok {
		return fmt.Errorf("source %s: %w", c.OutNodeID, ErrNodeNotFound)
	}
	in, ok := g.nodes[c.InNodeID]
	if !ok {
		return fmt.Errorf("target %s: %w", c.InNodeID, ErrNodeNotFound)
	}
	outPort, dir, ok := out.NodeBase().Port(c.OutPort)
	if !ok || dir != node.Out {
		return fmt.Errorf("output port %s of node %s: %w", c.OutPort, c.OutNodeID, ErrPortNotFound)
	}
	inPort, dir, ok := in.NodeBase().Port(c.InPort)
	if !ok || dir != node.In {
		return fmt.Errorf("input port %s of node %s: %w", c.InPort, c.InNodeID, ErrPortNotFound)
	}
	if outPort.TypeID != inPort.TypeID {
		return fmt.Errorf("%q to %q: %w", outPort.TypeID, inPort.TypeID, ErrTypeMismatch)
	}
	if g.index.HasEdge(c) {
		return ErrConnectionExists
	}
	if inPort.Policy == node.PolicySingle {
		for _, existing := range g.index.InEdges(c.InNodeID) {
			if existing.InPort == c.InPort {
				return ErrPortOccupied
			}
		}
	}
	return nil
}

// CanAppendConnection reports why AppendConnection would fail, or nil.
func (g *Graph) CanAppendConnection(c nodeid.ConnectionID) error {
	if !c.IsValid() {
		return ErrInvalidConnection
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validateConnection(c)
}

// DeleteConnection removes a connection.
func (g *Graph) DeleteConnection(c nodeid.ConnectionID) error {
	if !g.index.HasEdge(c) {
		return fmt.Errorf("delete connection %s: %w", c, ErrConnectionNotFound)
	}

	g.observers.emit(Event{Kind: ConnectionAboutToBeDeleted, Graph: g, Connection: c, NodeID: c.InNodeID})

	if !g.index.RemoveEdge(c) {
		return fmt.Errorf("delete connection %s: %w", c, ErrConnectionNotFound)
	}

	g.observers.emit(Event{Kind: ConnectionDeleted, Graph: g, Connection: c, NodeID: c.InNodeID})
	return nil
}

// onNodeEvent forwards port events of child nodes. Connections on a port are
// deleted before the port itself goes away.
func (g *Graph) onNodeEvent(n node.Node, ev node.Event) {
	id := n.ID()
	if ev.Kind == node.PortAboutToBeDeleted {
		for _, c := range g.PortConnections(id, ev.Port) {
			_ = g.DeleteConnection(c)
		}
	}
	g.observers.emit(Event{
		Kind:      nodeEventKinds[ev.Kind],
		Graph:     g,
		Node:      n,
		NodeID:    id,
		Direction: ev.Direction,
		Port:      ev.Port,
		Index:     ev.Index,
	})
}

// Node returns the node with the given id.
func (g *Graph) Node(id nodeid.NodeID) (node.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]node.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Subgraphs returns the direct group nodes of g in insertion order.
func (g *Graph) Subgraphs() []*Graph {
	var out []*Graph
	for _, n := range g.Nodes() {
		if sub, ok := n.(*Graph); ok {
			out = append(out, sub)
		}
	}
	return out
}

// NodeCount returns the number of direct nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// FindNodeByUUID searches g and all nested graphs. It returns the node and
// the graph owning it.
func (g *Graph) FindNodeByUUID(uuid nodeid.NodeUUID) (node.Node, *Graph, bool) {
	if g.UUID() == uuid {
		return g, g.Parent(), true
	}
	for _, n := range g.Nodes() {
		if n.UUID() == uuid {
			return n, g, true
		}
	}
	for _, sub := range g.Subgraphs() {
		if n, owner, ok := sub.FindNodeByUUID(uuid); ok {
			return n, owner, true
		}
	}
	return nil, nil, false
}

// FindNodeByPath resolves a path of node ids starting at g.
func (g *Graph) FindNodeByPath(p nodeid.Path) (node.Node, bool) {
	if len(p) == 0 {
		return nil, false
	}
	n, ok := g.Node(p[0])
	if !ok {
		return nil, false
	}
	if len(p) == 1 {
		return n, true
	}
	sub, ok := n.(*Graph)
	if !ok {
		return nil, false
	}
	return sub.FindNodeByPath(p[1:])
}

// Path returns the path of n relative to the root of g's tree.
func Path(n node.Node, owner *Graph) nodeid.Path {
	var rev nodeid.Path
	rev = append(rev, n.ID())
	for cur := owner; cur != nil && cur.Parent() != nil; cur = cur.Parent() {
		rev = append(rev, cur.ID())
	}
	slices.Reverse(rev)
	return rev
}

// Connections returns all connections in canonical order.
func (g *Graph) Connections() []nodeid.ConnectionID {
	g.mu.RLock()
	ids := slices.Clone(g.order)
	g.mu.RUnlock()

	var out []nodeid.ConnectionID
	for _, id := range ids {
		out = append(out, g.index.OutEdges(id)...)
	}
	dag.SortConnections(out)
	return out
}

// ConnectionsOf returns the connections of a node in one direction: incoming
// connections for node.In and outgoing ones for node.Out.
func (g *Graph) ConnectionsOf(id nodeid.NodeID, dir node.Direction) []nodeid.ConnectionID {
	if dir == node.In {
		return g.index.InEdges(id)
	}
	return g.index.OutEdges(id)
}

// PortConnections returns the connections attached to one port of a node.
func (g *Graph) PortConnections(id nodeid.NodeID, port nodeid.PortID) []nodeid.ConnectionID {
	var out []nodeid.ConnectionID
	for _, c := range g.index.InEdges(id) {
		if c.InPort == port {
			out = append(out, c)
		}
	}
	for _, c := range g.index.OutEdges(id) {
		if c.OutPort == port {
			out = append(out, c)
		}
	}
	return out
}

// HasConnection reports whether c is part of the graph.
func (g *Graph) HasConnection(c nodeid.ConnectionID) bool {
	return g.index.HasEdge(c)
}

// FindDependencies returns the nodes that transitively produce data the node
// consumes, breadth-first from the node.
func (g *Graph) FindDependencies(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	deps, err := g.index.Upstream(id)
	if err != nil {
		return nil, fmt.Errorf("find dependencies of %s: %w", id, ErrNodeNotFound)
	}
	return deps, nil
}

// FindDirectDependencies returns the nodes connected to the node's inputs.
func (g *Graph) FindDirectDependencies(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	deps, err := g.index.Dependencies(id)
	if err != nil {
		return nil, fmt.Errorf("find dependencies of %s: %w", id, ErrNodeNotFound)
	}
	return deps, nil
}

// FindDependentNodes returns the nodes that transitively consume the node's
// outputs, breadth-first from the node.
func (g *Graph) FindDependentNodes(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	deps, err := g.index.Downstream(id)
	if err != nil {
		return nil, fmt.Errorf("find dependents of %s: %w", id, ErrNodeNotFound)
	}
	return deps, nil
}

// FindDirectDependents returns the nodes connected to the node's outputs.
func (g *Graph) FindDirectDependents(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	deps, err := g.index.Dependents(id)
	if err != nil {
		return nil, fmt.Errorf("find dependents of %s: %w", id, ErrNodeNotFound)
	}
	return deps, nil
}

// TerminalNodes returns the nodes without dependents plus explicit targets.
func (g *Graph) TerminalNodes() []nodeid.NodeID {
	terminal := g.index.Roots()
	for _, n := range g.Nodes() {
		if n.NodeBase().IsTarget() && !slices.Contains(terminal, n.ID()) {
			terminal = append(terminal, n.ID())
		}
	}
	slices.Sort(terminal)
	return terminal
}

// IsAcyclic reports whether the connections of g form no cycle. Nested graphs
// are checked separately.
func (g *Graph) IsAcyclic() bool {
	return g.index.DetectCycles() == nil
}

// CheckAcyclic checks g and every nested graph and reports the first cycle.
func (g *Graph) CheckAcyclic() error {
	if err := g.index.DetectCycles(); err != nil {
		return fmt.Errorf("%w: %w", ErrCyclic, err)
	}
	for _, sub := range g.Subgraphs() {
		if err := sub.CheckAcyclic(); err != nil {
			return err
		}
	}
	return nil
}

// Dispose detaches every node and emits Disposed. Nested graphs are disposed
// first. A disposed graph rejects further edits.
func (g *Graph) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	unsubs := g.unsub
	g.unsub = make(map[nodeid.NodeID]func())
	g.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, sub := range g.Subgraphs() {
		sub.Dispose()
	}
	g.observers.emit(Event{Kind: Disposed, Graph: g, Node: g, NodeID: g.ID()})
}
