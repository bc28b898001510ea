package graph

import (
	"context"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

const (
	// InputProviderType is the registered type name of input providers.
	InputProviderType = "GroupInputProvider"
	// OutputProviderType is the registered type name of output providers.
	OutputProviderType = "GroupOutputProvider"
)

// InputProvider exposes the input ports of a group inside the group. Its
// output ports mirror the group's input ports by index.
type InputProvider struct {
	node.Base
}

// NewInputProvider creates a provider without ports. Ports are mirrored from
// the group once the provider is appended to it.
func NewInputProvider() *InputProvider {
	p := &InputProvider{}
	p.Init(InputProviderType)
	p.SetCaption("Input Provider")
	return p
}

// Eval forwards the values the execution model placed on the provider's
// output ids.
func (p *InputProvider) Eval(_ context.Context, inv *node.Invocation) error {
	for _, port := range inv.OutPorts() {
		inv.Set(port.ID, inv.Input(port.ID))
	}
	return nil
}

// OutputProvider collects the output values of a group inside the group. Its
// input ports mirror the group's output ports by index.
type OutputProvider struct {
	node.Base
}

// NewOutputProvider creates a provider without ports.
func NewOutputProvider() *OutputProvider {
	p := &OutputProvider{}
	p.Init(OutputProviderType)
	p.SetCaption("Output Provider")
	return p
}

// Eval passes every input through under the input's own port id.
func (p *OutputProvider) Eval(_ context.Context, inv *node.Invocation) error {
	for _, port := range inv.InPorts() {
		inv.Set(port.ID, inv.Input(port.ID))
	}
	return nil
}

// InitInputOutputProviders creates the input and output provider if they are
// absent.
func (g *Graph) InitInputOutputProviders() error {
	if g.InputProvider() == nil {
		if _, err := g.AppendNode(NewInputProvider()); err != nil {
			return err
		}
	}
	if g.OutputProvider() == nil {
		if _, err := g.AppendNode(NewOutputProvider()); err != nil {
			return err
		}
	}
	return nil
}

// InputProvider returns the group's input provider, if any.
func (g *Graph) InputProvider() *InputProvider {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[g.inputID]; ok {
		return n.(*InputProvider)
	}
	return nil
}

// OutputProvider returns the group's output provider, if any.
func (g *Graph) OutputProvider() *OutputProvider {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[g.outputID]; ok {
		return n.(*OutputProvider)
	}
	return nil
}

// InnerPort maps an outer port of the group to the provider port mirroring
// it: an input port maps to an output of the input provider, an output port
// to an input of the output provider.
func (g *Graph) InnerPort(outer nodeid.PortID) (node.Node, nodeid.PortID) {
	dir, idx := g.PortIndex(outer)
	if !idx.IsValid() {
		return nil, nodeid.InvalidPortID
	}
	if dir == node.In {
		if p := g.InputProvider(); p != nil {
			return p, p.PortID(node.Out, idx)
		}
		return nil, nodeid.InvalidPortID
	}
	if p := g.OutputProvider(); p != nil {
		return p, p.PortID(node.In, idx)
	}
	return nil, nodeid.InvalidPortID
}

// OuterPort maps a provider port back to the outer port of the group.
func (g *Graph) OuterPort(provider node.Node, inner nodeid.PortID) nodeid.PortID {
	dir, idx := provider.NodeBase().PortIndex(inner)
	if !idx.IsValid() {
		return nodeid.InvalidPortID
	}
	switch provider.(type) {
	case *InputProvider:
		if dir == node.Out {
			return g.PortID(node.In, idx)
		}
	case *OutputProvider:
		if dir == node.In {
			return g.PortID(node.Out, idx)
		}
	}
	return nodeid.InvalidPortID
}

// syncProvider makes the provider's ports of providerDir match the group's
// ports of groupDir.
func (g *Graph) syncProvider(p *node.Base, groupDir, providerDir node.Direction) {
	outer := g.Ports(groupDir)
	inner := p.Ports(providerDir)
	for i := len(outer); i < len(inner); i++ {
		_ = p.RemovePort(inner[i].ID)
	}
	for i, port := range outer {
		if i < len(inner) {
			if inner[i].TypeID != port.TypeID {
				_ = p.SetPortType(inner[i].ID, port.TypeID)
			}
			continue
		}
		p.InsertPort(providerDir, mirrorPort(port, providerDir), nodeid.PortIndex(i))
	}
}

func mirrorPort(outer node.Port, dir node.Direction) node.Port {
	p := node.NewPort(outer.TypeID, node.WithCaption(outer.Caption))
	if dir == node.In {
		// the output provider must accept whatever the group produced
		p.Optional = true
	}
	return p
}

// mirrorOuterPort keeps the providers in sync with the group's own ports.
func (g *Graph) mirrorOuterPort(ev node.Event) {
	var (
		provider *node.Base
		dir      node.Direction
	)
	if ev.Direction == node.In {
		if p := g.InputProvider(); p != nil {
			provider, dir = &p.Base, node.Out
		}
	} else {
		if p := g.OutputProvider(); p != nil {
			provider, dir = &p.Base, node.In
		}
	}
	if provider == nil {
		return
	}

	switch ev.Kind {
	case node.PortInserted:
		outer, _, ok := g.Port(ev.Port)
		if !ok {
			return
		}
		provider.InsertPort(dir, mirrorPort(outer, dir), ev.Index)
	case node.PortDeleted:
		if id := provider.PortID(dir, ev.Index); id.IsValid() {
			_ = provider.RemovePort(id)
		}
	case node.PortChanged:
		outer, _, ok := g.Port(ev.Port)
		if !ok {
			return
		}
		if id := provider.PortID(dir, ev.Index); id.IsValid() {
			_ = provider.SetPortType(id, outer.TypeID)
			_ = provider.SetPortCaption(id, outer.Caption)
		}
	}
}
