// internal/nodeid/types.go
package nodeid

import (
	"math"
	"strconv"

	"github.com/google/uuid"
)

// NodeID is the id of a node local to its graph.
type NodeID uint32

// PortID is the stable id of a port local to its node.
type PortID uint32

// PortIndex is the positional index of a port among ports of one direction.
type PortIndex int

// NodeUUID is the globally unique id of a node.
type NodeUUID string

const (
	// InvalidNodeID marks an unset node id.
	InvalidNodeID NodeID = math.MaxUint32
	// InvalidPortID marks an unset port id.
	InvalidPortID PortID = math.MaxUint32
	// InvalidPortIndex marks an unset port index.
	InvalidPortIndex PortIndex = -1
)

// IsValid reports whether the id is set.
func (id NodeID) IsValid() bool { return id != InvalidNodeID }

func (id NodeID) String() string {
	if !id.IsValid() {
		return "<invalid>"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// IsValid reports whether the id is set.
func (id PortID) IsValid() bool { return id != InvalidPortID }

func (id PortID) String() string {
	if !id.IsValid() {
		return "<invalid>"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// IsValid reports whether the index is set.
func (i PortIndex) IsValid() bool { return i >= 0 }

// NewUUID returns a fresh random NodeUUID.
func NewUUID() NodeUUID {
	return NodeUUID(uuid.NewString())
}

// IsValid reports whether the uuid is set and well-formed.
func (u NodeUUID) IsValid() bool {
	if u == "" {
		return false
	}
	_, err := uuid.Parse(string(u))
	return err == nil
}

func (u NodeUUID) String() string { return string(u) }
