package dag

import (
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

// Graph is the adjacency structure over the nodes and connections of one graph.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all vertices, keyed by node id.
	nodes map[nodeid.NodeID]*vertex
}

// vertex is a single node of the index. It is un-exported to enforce
// interaction with the index via node ids.
type vertex struct {
	id nodeid.NodeID
	// in holds the connections ending at this node.
	in map[nodeid.ConnectionID]struct{}
	// out holds the connections starting at this node.
	out map[nodeid.ConnectionID]struct{}
}
