package node

import (
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

// Direction distinguishes input from output ports.
type Direction int

const (
	// In marks an input port.
	In Direction = iota
	// Out marks an output port.
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Invert returns the opposite direction.
func (d Direction) Invert() Direction {
	if d == In {
		return Out
	}
	return In
}

// ConnectionPolicy controls how many connections an input port accepts.
type ConnectionPolicy int

const (
	// PolicySingle allows at most one incoming connection.
	PolicySingle ConnectionPolicy = iota
	// PolicyMultiple allows any number of incoming connections.
	PolicyMultiple
)

// Port is a typed slot of a node.
type Port struct {
	ID      nodeid.PortID
	TypeID  string
	Caption string
	// Optional inputs do not block evaluation when they carry no data.
	Optional bool
	// Evaluate marks outputs that take part in the node's default evaluation.
	Evaluate bool
	Policy   ConnectionPolicy
}

// PortOption configures a port on creation.
type PortOption func(*Port)

// Optional marks an input port as optional.
func Optional() PortOption {
	return func(p *Port) { p.Optional = true }
}

// WithCaption sets the display caption of a port.
func WithCaption(caption string) PortOption {
	return func(p *Port) { p.Caption = caption }
}

// NoEvaluate excludes an output port from the default evaluation.
func NoEvaluate() PortOption {
	return func(p *Port) { p.Evaluate = false }
}

// Multiple lets an input port accept more than one connection.
func Multiple() PortOption {
	return func(p *Port) { p.Policy = PolicyMultiple }
}

// NewPort creates a port description. The id is assigned by the owning node.
func NewPort(typeID string, opts ...PortOption) Port {
	p := Port{
		ID:       nodeid.InvalidPortID,
		TypeID:   typeID,
		Evaluate: true,
		Policy:   PolicySingle,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
