package graph

import (
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
)

// Module registers the group graph and its provider types.
type Module struct{}

// Register registers the graph types with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNode(TypeName, func() node.Node { return New() })
	r.RegisterNode(InputProviderType, func() node.Node { return NewInputProvider() })
	r.RegisterNode(OutputProviderType, func() node.Node { return NewOutputProvider() })
}
