package builder

import (
	"errors"
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
)

var (
	// ErrNotInGraph is returned when a connection endpoint is not a direct
	// node of the builder's graph.
	ErrNotInGraph = errors.New("node is not part of the graph")
	// ErrPortIndexOutOfRange is returned for a port index without a port.
	ErrPortIndexOutOfRange = errors.New("port index out of range")
)

// Builder assembles nodes and connections inside one graph.
type Builder struct {
	g   *graph.Graph
	reg *registry.Registry
}

// GraphData is the result of AddGraph.
type GraphData struct {
	Graph  *graph.Graph
	Input  *graph.InputProvider
	Output *graph.OutputProvider
}

// NodeOption customizes a node before it is appended.
type NodeOption func(n node.Node)

// WithUUID presets the node uuid.
func WithUUID(uuid nodeid.NodeUUID) NodeOption {
	return func(n node.Node) { n.NodeBase().SetUUID(uuid) }
}

// WithPosition presets the editor position.
func WithPosition(pos node.Position) NodeOption {
	return func(n node.Node) { n.NodeBase().SetPosition(pos) }
}

// WithID presets the node id. The graph may still allocate another one.
func WithID(id nodeid.NodeID) NodeOption {
	return func(n node.Node) { n.NodeBase().SetID(id) }
}

// WithCaption sets the caption.
func WithCaption(caption string) NodeOption {
	return func(n node.Node) { n.NodeBase().SetCaption(caption) }
}

// New creates a builder for g. reg may be nil if only AddGraph, Append and
// Connect are used.
func New(g *graph.Graph, reg *registry.Registry) *Builder {
	return &Builder{g: g, reg: reg}
}

// Graph returns the graph being built.
func (b *Builder) Graph() *graph.Graph { return b.g }

// Sub returns a builder for a nested graph sharing the registry.
func (b *Builder) Sub(g *graph.Graph) *Builder {
	return &Builder{g: g, reg: b.reg}
}

// AddNode creates a node of the given type and appends it.
func (b *Builder) AddNode(typeName string, opts ...NodeOption) (node.Node, error) {
	if b.reg == nil {
		return nil, fmt.Errorf("add node %q: %w", typeName, registry.ErrUnknownType)
	}
	n, err := b.reg.Create(typeName)
	if err != nil {
		return nil, fmt.Errorf("add node: %w", err)
	}
	return b.Append(n, opts...)
}

// Append appends an already constructed node.
func (b *Builder) Append(n node.Node, opts ...NodeOption) (node.Node, error) {
	if n == nil {
		return nil, graph.ErrNilNode
	}
	for _, opt := range opts {
		opt(n)
	}
	if _, err := b.g.AppendNode(n); err != nil {
		return nil, fmt.Errorf("add node %q: %w", n.TypeName(), err)
	}
	return n, nil
}

// AddGraph appends a group node with the given outer port types and returns
// it together with its providers.
func (b *Builder) AddGraph(inTypes, outTypes []string, opts ...NodeOption) (GraphData, error) {
	g := graph.New()
	if err := g.InitInputOutputProviders(); err != nil {
		return GraphData{}, fmt.Errorf("add graph: %w", err)
	}
	for _, t := range inTypes {
		g.AddInPort(t)
	}
	for _, t := range outTypes {
		g.AddOutPort(t)
	}
	if _, err := b.Append(g, opts...); err != nil {
		return GraphData{}, err
	}
	return GraphData{Graph: g, Input: g.InputProvider(), Output: g.OutputProvider()}, nil
}

// Connect connects output port outIdx of from to input port inIdx of to.
func (b *Builder) Connect(from node.Node, outIdx nodeid.PortIndex, to node.Node, inIdx nodeid.PortIndex) (nodeid.ConnectionID, error) {
	if err := b.owns(from); err != nil {
		return nodeid.ConnectionID{}, err
	}
	if err := b.owns(to); err != nil {
		return nodeid.ConnectionID{}, err
	}

	outPort := from.NodeBase().PortID(node.Out, outIdx)
	if !outPort.IsValid() {
		return nodeid.ConnectionID{}, fmt.Errorf("output %d of %q: %w", outIdx, from.TypeName(), ErrPortIndexOutOfRange)
	}
	inPort := to.NodeBase().PortID(node.In, inIdx)
	if !inPort.IsValid() {
		return nodeid.ConnectionID{}, fmt.Errorf("input %d of %q: %w", inIdx, to.TypeName(), ErrPortIndexOutOfRange)
	}

	c := nodeid.ConnectionID{OutNodeID: from.ID(), OutPort: outPort, InNodeID: to.ID(), InPort: inPort}
	if err := b.g.AppendConnection(c); err != nil {
		return nodeid.ConnectionID{}, fmt.Errorf("connect: %w", err)
	}
	return c, nil
}

func (b *Builder) owns(n node.Node) error {
	if n == nil {
		return graph.ErrNilNode
	}
	got, ok := b.g.Node(n.ID())
	if !ok || got.UUID() != n.UUID() {
		return fmt.Errorf("%q (%s): %w", n.TypeName(), n.UUID(), ErrNotInGraph)
	}
	return nil
}
