// internal/nodeid/connection.go
package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
)

// ConnectionID identifies a connection from an output port to an input port.
type ConnectionID struct {
	OutNodeID NodeID
	OutPort   PortID
	InNodeID  NodeID
	InPort    PortID
}

// Draft returns a connection whose input endpoint is unset.
func Draft(outNode NodeID, outPort PortID) ConnectionID {
	return ConnectionID{
		OutNodeID: outNode,
		OutPort:   outPort,
		InNodeID:  InvalidNodeID,
		InPort:    InvalidPortID,
	}
}

// IsValid reports whether both endpoints are set. A draft connection is never valid.
func (c ConnectionID) IsValid() bool {
	return c.OutNodeID.IsValid() && c.OutPort.IsValid() &&
		c.InNodeID.IsValid() && c.InPort.IsValid()
}

// IsDraft reports whether exactly one endpoint is set.
func (c ConnectionID) IsDraft() bool {
	out := c.OutNodeID.IsValid() && c.OutPort.IsValid()
	in := c.InNodeID.IsValid() && c.InPort.IsValid()
	return out != in
}

// Reversed swaps the endpoints. Used when a draft was started from an input port.
func (c ConnectionID) Reversed() ConnectionID {
	return ConnectionID{
		OutNodeID: c.InNodeID,
		OutPort:   c.InPort,
		InNodeID:  c.OutNodeID,
		InPort:    c.OutPort,
	}
}

// Touches reports whether either endpoint belongs to the given node.
func (c ConnectionID) Touches(id NodeID) bool {
	return c.OutNodeID == id || c.InNodeID == id
}

// String serializes the connection as `out:port->in:port`.
func (c ConnectionID) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", c.OutNodeID, c.OutPort, c.InNodeID, c.InPort)
}

var connectionRegex = regexp.MustCompile(`^(\d+):(\d+)->(\d+):(\d+)$`)

// ParseConnection parses the canonical `out:port->in:port` representation.
func ParseConnection(raw string) (ConnectionID, error) {
	m := connectionRegex.FindStringSubmatch(raw)
	if m == nil {
		return ConnectionID{}, fmt.Errorf("invalid connection format: %q", raw)
	}
	var parts [4]uint32
	for i := range parts {
		v, err := strconv.ParseUint(m[i+1], 10, 32)
		if err != nil {
			return ConnectionID{}, fmt.Errorf("invalid connection component %q: %w", m[i+1], err)
		}
		parts[i] = uint32(v)
	}
	return ConnectionID{
		OutNodeID: NodeID(parts[0]),
		OutPort:   PortID(parts[1]),
		InNodeID:  NodeID(parts[2]),
		InPort:    PortID(parts[3]),
	}, nil
}
