// Package numeric provides the reference node types of the engine: sources,
// arithmetic, a display sink and a configurable sleeper. All ports carry the
// "double" type tag and cty.Number payloads.
package numeric

import (
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// TypeDouble is the type tag of every numeric port.
const TypeDouble = "double"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNode(NumberSourceType, func() node.Node { return NewNumberSource(0) })
	r.RegisterNode(AdderType, func() node.Node { return NewAdder() })
	r.RegisterNode(DividerType, func() node.Node { return NewDivider() })
	r.RegisterNode(SumType, func() node.Node { return NewSum() })
	r.RegisterNode(PassthroughType, func() node.Node { return NewPassthrough() })
	r.RegisterNode(DisplayType, func() node.Node { return NewDisplay() })
	r.RegisterNode(SleeperType, func() node.Node { return NewSleeper(0, false) })
}

// number returns v as float64, treating absent data as zero.
func number(v cty.Value) float64 {
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.Number) {
		return 0
	}
	f, _ := v.AsBigFloat().Float64()
	return f
}

// present reports whether v carries a usable number.
func present(v cty.Value) bool {
	return !v.IsNull() && v.IsKnown() && v.Type().Equals(cty.Number)
}
