package persist

import (
	"errors"
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrInvalidRecord is returned when a record cannot be turned into a graph.
	ErrInvalidRecord = errors.New("invalid graph record")
	// ErrNotConfigurable is returned for properties on a node type without any.
	ErrNotConfigurable = errors.New("node type has no properties")
)

// PortRecord describes an outer port of a graph.
type PortRecord struct {
	Type    string
	Caption string
}

// NodeRecord describes one node. Graph is set for group nodes only.
type NodeRecord struct {
	Type       string
	ID         nodeid.NodeID
	UUID       nodeid.NodeUUID
	Caption    string
	Position   node.Position
	Target     bool
	Properties map[string]cty.Value
	Graph      *GraphRecord
}

// ConnectionRecord connects output port Out of node From to input port In of
// node To. Ports are addressed by index.
type ConnectionRecord struct {
	From nodeid.NodeID
	Out  nodeid.PortIndex
	To   nodeid.NodeID
	In   nodeid.PortIndex
}

// GraphRecord is the persisted shape of a graph.
type GraphRecord struct {
	Inputs      []PortRecord
	Outputs     []PortRecord
	Nodes       []NodeRecord
	Connections []ConnectionRecord
}

// NodeCount returns the number of nodes in the record, nested ones included.
func (r *GraphRecord) NodeCount() int {
	count := len(r.Nodes)
	for _, n := range r.Nodes {
		if n.Graph != nil {
			count += n.Graph.NodeCount()
		}
	}
	return count
}

// Capture records g and every graph nested in it.
func Capture(g *graph.Graph) (*GraphRecord, error) {
	rec := &GraphRecord{
		Inputs:  capturePorts(g.Ports(node.In)),
		Outputs: capturePorts(g.Ports(node.Out)),
	}

	for _, n := range g.Nodes() {
		b := n.NodeBase()
		nr := NodeRecord{
			Type:     n.TypeName(),
			ID:       n.ID(),
			UUID:     n.UUID(),
			Caption:  b.Caption(),
			Position: b.Position(),
			Target:   b.IsTarget(),
		}
		if c, ok := n.(node.Configurable); ok {
			props, err := c.Properties()
			if err != nil {
				return nil, fmt.Errorf("capture %s (%s): %w", n.TypeName(), n.UUID(), err)
			}
			nr.Properties = props
		}
		if sub, ok := n.(*graph.Graph); ok {
			sr, err := Capture(sub)
			if err != nil {
				return nil, err
			}
			nr.Graph = sr
		}
		rec.Nodes = append(rec.Nodes, nr)
	}

	for _, c := range g.Connections() {
		from, ok := g.Node(c.OutNodeID)
		if !ok {
			continue
		}
		to, ok := g.Node(c.InNodeID)
		if !ok {
			continue
		}
		_, outIdx := from.NodeBase().PortIndex(c.OutPort)
		_, inIdx := to.NodeBase().PortIndex(c.InPort)
		rec.Connections = append(rec.Connections, ConnectionRecord{
			From: c.OutNodeID,
			Out:  outIdx,
			To:   c.InNodeID,
			In:   inIdx,
		})
	}
	return rec, nil
}

func capturePorts(ports []node.Port) []PortRecord {
	out := make([]PortRecord, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortRecord{Type: p.TypeID, Caption: p.Caption})
	}
	return out
}

// Restore builds a new graph tree from rec, instantiating nodes through reg.
// The registry must know the graph and provider types for records with
// groups or providers.
func Restore(reg *registry.Registry, rec *GraphRecord) (*graph.Graph, error) {
	g := graph.New()
	if err := restoreInto(reg, g, rec); err != nil {
		return nil, err
	}
	return g, nil
}

func restoreInto(reg *registry.Registry, g *graph.Graph, rec *GraphRecord) error {
	for _, p := range rec.Inputs {
		g.AddInPort(p.Type, node.WithCaption(p.Caption))
	}
	for _, p := range rec.Outputs {
		g.AddOutPort(p.Type, node.WithCaption(p.Caption))
	}

	for _, nr := range rec.Nodes {
		n, err := restoreNode(reg, nr)
		if err != nil {
			return err
		}
		id, err := g.AppendNode(n)
		if err != nil {
			return fmt.Errorf("restore %s %s: %w", nr.Type, nr.ID, err)
		}
		if id != nr.ID {
			return fmt.Errorf("%w: node id %s is used twice", ErrInvalidRecord, nr.ID)
		}
	}

	for _, cr := range rec.Connections {
		c, err := resolveConnection(g, cr)
		if err != nil {
			return err
		}
		if err := g.AppendConnection(c); err != nil {
			return fmt.Errorf("restore connection %s: %w", c, err)
		}
	}
	return nil
}

func restoreNode(reg *registry.Registry, nr NodeRecord) (node.Node, error) {
	if !nr.ID.IsValid() {
		return nil, fmt.Errorf("%w: node %q has no id", ErrInvalidRecord, nr.Type)
	}
	n, err := reg.Create(nr.Type)
	if err != nil {
		return nil, fmt.Errorf("restore node %s: %w", nr.ID, err)
	}

	b := n.NodeBase()
	b.SetID(nr.ID)
	if nr.UUID != "" {
		if !nr.UUID.IsValid() {
			return nil, fmt.Errorf("%w: node %s has malformed uuid %q", ErrInvalidRecord, nr.ID, nr.UUID)
		}
		b.SetUUID(nr.UUID)
	}
	if nr.Caption != "" {
		b.SetCaption(nr.Caption)
	}
	b.SetPosition(nr.Position)
	b.SetTarget(nr.Target)

	if len(nr.Properties) > 0 {
		c, ok := n.(node.Configurable)
		if !ok {
			return nil, fmt.Errorf("restore node %s (%s): %w", nr.ID, nr.Type, ErrNotConfigurable)
		}
		if err := c.SetProperties(nr.Properties); err != nil {
			return nil, fmt.Errorf("restore node %s (%s): %w", nr.ID, nr.Type, err)
		}
	}

	if sub, ok := n.(*graph.Graph); ok && nr.Graph != nil {
		if err := restoreInto(reg, sub, nr.Graph); err != nil {
			return nil, fmt.Errorf("restore group %s: %w", nr.ID, err)
		}
	}
	return n, nil
}

func resolveConnection(g *graph.Graph, cr ConnectionRecord) (nodeid.ConnectionID, error) {
	from, ok := g.Node(cr.From)
	if !ok {
		return nodeid.ConnectionID{}, fmt.Errorf("%w: connection source %s does not exist", ErrInvalidRecord, cr.From)
	}
	to, ok := g.Node(cr.To)
	if !ok {
		return nodeid.ConnectionID{}, fmt.Errorf("%w: connection target %s does not exist", ErrInvalidRecord, cr.To)
	}
	outPort := from.NodeBase().PortID(node.Out, cr.Out)
	inPort := to.NodeBase().PortID(node.In, cr.In)
	if !outPort.IsValid() || !inPort.IsValid() {
		return nodeid.ConnectionID{}, fmt.Errorf("%w: connection %s[%d] -> %s[%d] uses a missing port",
			ErrInvalidRecord, cr.From, cr.Out, cr.To, cr.In)
	}
	return nodeid.ConnectionID{OutNodeID: cr.From, OutPort: outPort, InNodeID: cr.To, InPort: inPort}, nil
}
